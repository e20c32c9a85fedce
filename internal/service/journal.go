package service

import (
	"context"

	"github.com/sakif/people-match/internal/repository"
)

// Journal receives every engine mutation before it is applied in memory.
//
// repository.Store satisfies it; so does any test fake. The engine only
// depends on this one method, never on LoadAll.
type Journal interface {
	Apply(ctx context.Context, m repository.Mutation) error
}

// NopJournal accepts every mutation and stores nothing: the pure in-memory
// backing.
type NopJournal struct{}

func (NopJournal) Apply(context.Context, repository.Mutation) error { return nil }
