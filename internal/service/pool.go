package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/repository"
)

// QuestionPool is the shared, append-only set of questions.
//
// Questions are keyed by exact text. IDs are 1-based positions, so the pool
// order is also ID order. Nothing is ever removed.
//
// Inserts take the write lock, which makes check-then-append atomic: two
// concurrent Ensure calls for the same text produce exactly one question.
type QuestionPool struct {
	journal Journal

	mu     sync.RWMutex
	order  []model.Question
	byText map[string]int // text → index into order
}

// NewQuestionPool creates an empty pool that journals inserts to journal.
func NewQuestionPool(journal Journal) *QuestionPool {
	return &QuestionPool{
		journal: journal,
		byText:  make(map[string]int),
	}
}

// Ensure returns the question with this exact text, adding it first when it
// is new. A journal failure leaves the pool unchanged.
func (p *QuestionPool) Ensure(ctx context.Context, text string) (model.Question, error) {
	if strings.TrimSpace(text) == "" {
		return model.Question{}, apperror.ValidationFailed("question", "question text is required")
	}

	// Fast path: most calls hit an existing question.
	if q, ok := p.Get(text); ok {
		return q, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won the race.
	if i, ok := p.byText[text]; ok {
		return p.order[i], nil
	}

	q := model.Question{ID: int64(len(p.order)) + 1, Text: text}
	err := p.journal.Apply(ctx, repository.Mutation{
		Kind:       repository.MutationEnsureQuestion,
		QuestionID: q.ID,
		Question:   q.Text,
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("adding question %q: %w", text, err)
	}

	p.byText[text] = len(p.order)
	p.order = append(p.order, q)
	return q, nil
}

// All returns the pool in insertion order. The slice is a copy.
func (p *QuestionPool) All() []model.Question {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

// Get looks a question up by exact text.
func (p *QuestionPool) Get(text string) (model.Question, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, ok := p.byText[text]
	if !ok {
		return model.Question{}, false
	}
	return p.order[i], true
}

// ByID looks a question up by its position.
func (p *QuestionPool) ByID(id int64) (model.Question, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if id < 1 || id > int64(len(p.order)) {
		return model.Question{}, false
	}
	return p.order[id-1], true
}

// Contains reports whether text is in the pool.
func (p *QuestionPool) Contains(text string) bool {
	_, ok := p.Get(text)
	return ok
}

// Len returns the number of questions.
func (p *QuestionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// restore loads persisted questions in pool order without journaling.
// IDs are reassigned from position so gaps in a store cannot break ByID.
func (p *QuestionPool) restore(questions []model.Question) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range questions {
		if _, ok := p.byText[q.Text]; ok {
			continue
		}
		q.ID = int64(len(p.order)) + 1
		p.byText[q.Text] = len(p.order)
		p.order = append(p.order, q)
	}
}
