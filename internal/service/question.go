package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/repository"
)

// QuestionService routes answer, skip and preference changes for a user and
// keeps the question pool in step with them.
//
// ORDER OF OPERATIONS:
// Every mutation follows the same three steps:
//
//  1. Ensure the question is in the pool (journaled on first sight).
//  2. Journal the mutation.
//  3. Apply it to the user's profile.
//
// Steps 2 and 3 run under the user's write lock, so two requests for the same
// user never interleave. If step 2 fails the profile is not touched. A failure
// after step 1 leaves the question in the pool; the pool is append-only, so
// that is the same state a later successful call would have produced.
type QuestionService struct {
	pool    *QuestionPool
	journal Journal
	logger  *slog.Logger
	now     func() time.Time
}

// NewQuestionService creates a QuestionService over pool.
func NewQuestionService(pool *QuestionPool, journal Journal, logger *slog.Logger) *QuestionService {
	return &QuestionService{
		pool:    pool,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

// RecordAnswer stores the user's own answer, replacing any earlier answer
// and clearing a skip of the same question.
func (s *QuestionService) RecordAnswer(ctx context.Context, u *model.User, question string, answer bool) error {
	q, err := s.ensure(ctx, question)
	if err != nil {
		return err
	}
	return s.recordAnswer(ctx, u, q, answer)
}

// RecordAnswerByID is RecordAnswer for a question addressed by pool id.
func (s *QuestionService) RecordAnswerByID(ctx context.Context, u *model.User, questionID int64, answer bool) error {
	q, err := s.byID(questionID)
	if err != nil {
		return err
	}
	return s.recordAnswer(ctx, u, q, answer)
}

func (s *QuestionService) recordAnswer(ctx context.Context, u *model.User, q model.Question, answer bool) error {
	err := u.Update(func(p *model.Profile) error {
		now := s.now()
		if err := s.journal.Apply(ctx, repository.Mutation{
			Kind:     repository.MutationRecordAnswer,
			UserID:   u.ID,
			Question: q.Text,
			Value:    answer,
			At:       now,
		}); err != nil {
			return err
		}
		p.RecordAnswer(q.Text, answer)
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording answer of %q to %q: %w", u.Name, q.Text, err)
	}

	s.logger.Debug("answer recorded",
		slog.String("user", u.Name),
		slog.Int64("question_id", q.ID),
		slog.Bool("answer", answer),
	)
	return nil
}

// DeclarePreference records the answer u wants a match to have given to
// question. The user's own answer is not touched.
func (s *QuestionService) DeclarePreference(ctx context.Context, u *model.User, question string, expected bool) error {
	q, err := s.ensure(ctx, question)
	if err != nil {
		return err
	}
	return s.declarePreference(ctx, u, q, expected)
}

// DeclarePreferenceByID declares a preference on a question already in the
// pool. An unknown id is NotFound; the pool is never extended by id.
func (s *QuestionService) DeclarePreferenceByID(ctx context.Context, u *model.User, questionID int64, expected bool) error {
	q, err := s.byID(questionID)
	if err != nil {
		return err
	}
	return s.declarePreference(ctx, u, q, expected)
}

func (s *QuestionService) declarePreference(ctx context.Context, u *model.User, q model.Question, expected bool) error {
	err := u.Update(func(p *model.Profile) error {
		now := s.now()
		if err := s.journal.Apply(ctx, repository.Mutation{
			Kind:     repository.MutationDeclarePreference,
			UserID:   u.ID,
			Question: q.Text,
			Value:    expected,
			At:       now,
		}); err != nil {
			return err
		}
		p.SetPreference(q.Text, expected)
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("declaring preference of %q on %q: %w", u.Name, q.Text, err)
	}

	s.logger.Debug("preference declared",
		slog.String("user", u.Name),
		slog.Int64("question_id", q.ID),
		slog.Bool("expected", expected),
	)
	return nil
}

// Skip defers question for u and discards any recorded answer.
// The question joins the pool if it is new, so it can come back through
// NextQuestionFor.
func (s *QuestionService) Skip(ctx context.Context, u *model.User, question string) error {
	q, err := s.ensure(ctx, question)
	if err != nil {
		return err
	}
	return s.skip(ctx, u, q)
}

// SkipByID is Skip for a question addressed by pool id.
func (s *QuestionService) SkipByID(ctx context.Context, u *model.User, questionID int64) error {
	q, err := s.byID(questionID)
	if err != nil {
		return err
	}
	return s.skip(ctx, u, q)
}

func (s *QuestionService) skip(ctx context.Context, u *model.User, q model.Question) error {
	err := u.Update(func(p *model.Profile) error {
		now := s.now()
		if err := s.journal.Apply(ctx, repository.Mutation{
			Kind:     repository.MutationSkip,
			UserID:   u.ID,
			Question: q.Text,
			At:       now,
		}); err != nil {
			return err
		}
		p.Skip(q.Text)
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("skipping %q for %q: %w", q.Text, u.Name, err)
	}

	s.logger.Debug("question skipped",
		slog.String("user", u.Name),
		slog.Int64("question_id", q.ID),
	)
	return nil
}

// NextQuestionFor suggests what u should answer next.
//
// The first pool question (in pool order) that u has neither answered nor
// skipped wins. Once that backlog is empty, skipped questions come back,
// again in pool order. ok is false when every question is answered.
func (s *QuestionService) NextQuestionFor(u *model.User) (q model.Question, ok bool) {
	questions := s.pool.All()

	var firstSkipped *model.Question
	u.View(func(p *model.Profile) {
		for i := range questions {
			switch p.State(questions[i].Text) {
			case model.AnswerUnset:
				q, ok = questions[i], true
				return
			case model.AnswerSkipped:
				if firstSkipped == nil {
					firstSkipped = &questions[i]
				}
			}
		}
	})
	if ok {
		return q, true
	}
	if firstSkipped != nil {
		return *firstSkipped, true
	}
	return model.Question{}, false
}

// AnsweredStatus maps every pool question to whether u has answered it.
// A skipped question counts as unanswered.
func (s *QuestionService) AnsweredStatus(u *model.User) map[string]bool {
	questions := s.pool.All()
	status := make(map[string]bool, len(questions))
	u.View(func(p *model.Profile) {
		for _, q := range questions {
			_, answered := p.Answer(q.Text)
			status[q.Text] = answered
		}
	})
	return status
}

// Statuses returns u's state for every pool question, in pool order.
func (s *QuestionService) Statuses(u *model.User) []model.QuestionStatus {
	questions := s.pool.All()
	out := make([]model.QuestionStatus, 0, len(questions))
	u.View(func(p *model.Profile) {
		for _, q := range questions {
			state := p.State(q.Text)
			out = append(out, model.QuestionStatus{
				Question: q,
				State:    state,
				Answered: state.Answered(),
			})
		}
	})
	return out
}

// Pool exposes the question pool for listing.
func (s *QuestionService) Pool() *QuestionPool {
	return s.pool
}

func (s *QuestionService) ensure(ctx context.Context, question string) (model.Question, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Question{}, apperror.ValidationFailed("question", "question text is required")
	}
	return s.pool.Ensure(ctx, question)
}

func (s *QuestionService) byID(id int64) (model.Question, error) {
	q, ok := s.pool.ByID(id)
	if !ok {
		return model.Question{}, apperror.NotFound("question", strconv.FormatInt(id, 10))
	}
	return q, nil
}
