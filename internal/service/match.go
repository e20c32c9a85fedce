package service

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/people-match/internal/metrics"
	"github.com/sakif/people-match/internal/model"
)

// MatchPolicy selects how BestMatch scores a candidate.
type MatchPolicy string

const (
	// OneDirectional scores a candidate by the share of the seeker's
	// preferences that the candidate's answers satisfy. A seeker without
	// preferences gets no match.
	OneDirectional MatchPolicy = "one_directional"

	// Mutual only considers candidates that satisfy every seeker preference
	// and whose own preferences the seeker satisfies in full. Pairs with no
	// preferences on either side are skipped.
	Mutual MatchPolicy = "mutual"
)

// ParseMatchPolicy maps a config value to a policy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch p := MatchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", OneDirectional:
		return OneDirectional, nil
	case Mutual:
		return Mutual, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", s)
	}
}

// MatchService answers filter searches and best-match queries. It only
// reads: no method here changes a user or the pool.
//
// CONSISTENCY:
// Users are read one at a time under their own read lock. A scan that runs
// while another user is answering may see that user before or after the
// change, never halfway.
type MatchService struct {
	registry *Registry
	policy   MatchPolicy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewMatchService creates a MatchService over registry. m may be nil.
func NewMatchService(registry *Registry, policy MatchPolicy, m *metrics.Metrics, logger *slog.Logger) *MatchService {
	if policy == "" {
		policy = OneDirectional
	}
	return &MatchService{
		registry: registry,
		policy:   policy,
		metrics:  m,
		logger:   logger,
	}
}

// Policy returns the active match policy.
func (s *MatchService) Policy() MatchPolicy {
	return s.policy
}

// Search returns, in registration order, the names of every user whose
// recorded answers equal every filter. A missing answer never satisfies a
// filter. An empty filter set returns everybody.
func (s *MatchService) Search(filters map[string]bool) []string {
	names := []string{}
	for _, u := range s.registry.All() {
		var ok bool
		u.View(func(p *model.Profile) { ok = satisfies(p, filters) })
		if ok {
			names = append(names, u.Name)
		}
	}
	s.metrics.Search(len(names))
	return names
}

// BestMatch finds the most compatible other user for seekerName.
//
// ok is false when nobody qualifies. An unknown seeker is NotFound.
// Among equal scores the earliest registered candidate wins.
func (s *MatchService) BestMatch(seekerName string) (match model.Match, ok bool, err error) {
	start := time.Now()

	seeker, err := s.registry.Get(seekerName)
	if err != nil {
		s.metrics.BestMatch(string(s.policy), "unknown_user", time.Since(start))
		return model.Match{}, false, err
	}

	switch s.policy {
	case Mutual:
		match, ok = s.bestMutual(seeker)
	default:
		match, ok = s.bestOneDirectional(seeker)
	}

	outcome := "none"
	if ok {
		outcome = "found"
	}
	s.metrics.BestMatch(string(s.policy), outcome, time.Since(start))
	s.logger.Debug("best match computed",
		slog.String("seeker", seeker.Name),
		slog.String("policy", string(s.policy)),
		slog.String("match", match.Name),
		slog.Float64("score", match.Score),
	)
	return match, ok, nil
}

// bestOneDirectional starts below zero, so a candidate that satisfies none
// of the preferences still beats having no candidate at all.
func (s *MatchService) bestOneDirectional(seeker *model.User) (model.Match, bool) {
	prefs := seeker.Preferences()
	if len(prefs) == 0 {
		return model.Match{}, false
	}

	best := model.Match{Score: -1}
	found := false
	for _, c := range s.registry.All() {
		if c == seeker {
			continue
		}
		var score int
		c.View(func(p *model.Profile) { score = countSatisfied(p, prefs) })

		ratio := float64(score) / float64(len(prefs))
		if ratio > best.Score {
			best = model.Match{Name: c.Name, Score: ratio}
			found = true
		}
	}
	if !found {
		return model.Match{}, false
	}
	return best, true
}

// bestMutual returns the first candidate, in registration order, for whom
// both sides' preferences are fully satisfied. Such a pair always scores 1.
func (s *MatchService) bestMutual(seeker *model.User) (model.Match, bool) {
	seekerPrefs := seeker.Preferences()

	for _, c := range s.registry.All() {
		if c == seeker {
			continue
		}

		var candidatePrefs map[string]bool
		var candidateOK bool
		c.View(func(p *model.Profile) {
			candidateOK = satisfies(p, seekerPrefs)
			if candidateOK {
				candidatePrefs = p.Preferences()
			}
		})
		if !candidateOK || len(seekerPrefs)+len(candidatePrefs) == 0 {
			continue
		}

		var seekerOK bool
		seeker.View(func(p *model.Profile) { seekerOK = satisfies(p, candidatePrefs) })
		if seekerOK {
			return model.Match{Name: c.Name, Score: 1}, true
		}
	}
	return model.Match{}, false
}

// satisfies reports whether every (question, desired) pair equals the
// profile's recorded answer.
func satisfies(p *model.Profile, want map[string]bool) bool {
	for question, desired := range want {
		answer, ok := p.Answer(question)
		if !ok || answer != desired {
			return false
		}
	}
	return true
}

func countSatisfied(p *model.Profile, prefs map[string]bool) int {
	n := 0
	for question, expected := range prefs {
		if answer, ok := p.Answer(question); ok && answer == expected {
			n++
		}
	}
	return n
}
