package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

var errJournal = errors.New("journal unavailable")

// fakeJournal records every mutation. Set fail to make Apply return
// errJournal for one kind (or every kind when failAll is set).
type fakeJournal struct {
	mu        sync.Mutex
	mutations []repository.Mutation
	fail      repository.MutationKind
	failAll   bool
}

func (j *fakeJournal) Apply(_ context.Context, m repository.Mutation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failAll || (j.fail != "" && j.fail == m.Kind) {
		return errJournal
	}
	j.mutations = append(j.mutations, m)
	return nil
}

func (j *fakeJournal) kinds() []repository.MutationKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]repository.MutationKind, len(j.mutations))
	for i, m := range j.mutations {
		out[i] = m.Kind
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return NewEngine(opts)
}

func mustRegister(t *testing.T, e *Engine, name string) *model.User {
	t.Helper()
	u, err := e.Registry.Register(context.Background(), name, "", nil)
	if err != nil {
		t.Fatalf("Register(%q) error = %v", name, err)
	}
	return u
}

func mustAnswer(t *testing.T, e *Engine, u *model.User, answers map[string]bool) {
	t.Helper()
	for q, a := range answers {
		if err := e.Questions.RecordAnswer(context.Background(), u, q, a); err != nil {
			t.Fatalf("RecordAnswer(%q, %q) error = %v", u.Name, q, err)
		}
	}
}

func mustPrefer(t *testing.T, e *Engine, u *model.User, prefs map[string]bool) {
	t.Helper()
	for q, want := range prefs {
		if err := e.Questions.DeclarePreference(context.Background(), u, q, want); err != nil {
			t.Fatalf("DeclarePreference(%q, %q) error = %v", u.Name, q, err)
		}
	}
}

func mustSeed(t *testing.T, e *Engine, texts ...string) {
	t.Helper()
	if err := e.SeedQuestions(context.Background(), texts); err != nil {
		t.Fatalf("SeedQuestions() error = %v", err)
	}
}
