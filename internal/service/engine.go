package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/people-match/internal/metrics"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/repository"
)

// Options configures NewEngine. Zero values give an in-memory engine with the
// default policies and a discarding logger.
type Options struct {
	Journal            Journal
	MatchPolicy        MatchPolicy
	RegistrationPolicy RegistrationPolicy
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
}

// Engine wires the pool, the registry and the two services around one journal.
//
//	Registry ──┐
//	           ├── MatchService     (reads)
//	Pool ──────┴── QuestionService  (writes through the journal)
type Engine struct {
	Pool      *QuestionPool
	Registry  *Registry
	Questions *QuestionService
	Matches   *MatchService

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine builds an empty engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var journal Journal = NopJournal{}
	if opts.Journal != nil {
		journal = opts.Journal
	}
	journal = instrumentedJournal{next: journal, metrics: opts.Metrics}

	pool := NewQuestionPool(journal)
	registry := NewRegistry(journal, opts.RegistrationPolicy, logger)

	return &Engine{
		Pool:      pool,
		Registry:  registry,
		Questions: NewQuestionService(pool, journal, logger),
		Matches:   NewMatchService(registry, opts.MatchPolicy, opts.Metrics, logger),
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Restore loads a persisted snapshot without journaling it back.
// Call it once, on an empty engine, before serving traffic.
func (e *Engine) Restore(ctx context.Context, snap *repository.Snapshot) error {
	if snap == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.Pool.restore(snap.Questions)

	for _, rec := range snap.Users {
		u := e.Registry.restore(rec)
		err := u.Update(func(p *model.Profile) error {
			for question, answer := range rec.Answers {
				p.RecordAnswer(question, answer)
			}
			for _, question := range rec.Skipped {
				p.Skip(question)
			}
			for question, expected := range rec.Preferences {
				p.SetPreference(question, expected)
			}
			if !rec.UpdatedAt.IsZero() {
				p.UpdatedAt = rec.UpdatedAt
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("restoring user %q: %w", rec.Name, err)
		}
	}

	e.logger.Info("engine restored",
		slog.Int("questions", e.Pool.Len()),
		slog.Int("users", e.Registry.Len()),
	)
	e.ReportPopulation()
	return nil
}

// SeedQuestions ensures every text is in the pool, keeping the given order
// for texts that are new.
func (e *Engine) SeedQuestions(ctx context.Context, texts []string) error {
	added := 0
	for _, text := range texts {
		before := e.Pool.Len()
		if _, err := e.Pool.Ensure(ctx, text); err != nil {
			return fmt.Errorf("seeding questions: %w", err)
		}
		if e.Pool.Len() > before {
			added++
		}
	}
	if added > 0 {
		e.logger.Info("questions seeded", slog.Int("added", added), slog.Int("total", e.Pool.Len()))
	}
	return nil
}

// ReportPopulation pushes the current user and question counts to the gauges.
func (e *Engine) ReportPopulation() {
	e.metrics.SetPopulation(e.Registry.Len(), e.Pool.Len())
}

// instrumentedJournal counts journal writes by kind and result.
type instrumentedJournal struct {
	next    Journal
	metrics *metrics.Metrics
}

func (j instrumentedJournal) Apply(ctx context.Context, m repository.Mutation) error {
	err := j.next.Apply(ctx, m)
	j.metrics.Mutation(string(m.Kind), err)
	return err
}
