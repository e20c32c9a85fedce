// Package repository defines the persistence contract of the matching engine.
//
// The engine keeps its working state in memory. A Store makes that state
// durable with two hooks:
//
//	LoadAll(ctx)        → Snapshot of the whole population at start-up
//	Apply(ctx, Mutation) → one write per successful engine operation
//
// Mutations are applied BEFORE the in-memory change; when Apply fails the
// engine leaves its own state untouched, so memory and store never diverge
// by a partial write.
package repository

import (
	"context"
	"time"

	"github.com/sakif/people-match/internal/model"
)

// MutationKind names the engine operation a Mutation records.
type MutationKind string

const (
	MutationRegisterUser       MutationKind = "register_user"
	MutationUpdateUserMetadata MutationKind = "update_user_metadata"
	MutationEnsureQuestion     MutationKind = "ensure_question"
	MutationRecordAnswer       MutationKind = "record_answer"
	MutationDeclarePreference  MutationKind = "declare_preference"
	MutationSkip               MutationKind = "skip"
)

// Mutation is one durable state change.
//
// Which fields are meaningful depends on Kind:
//   - RegisterUser / UpdateUserMetadata: UserID, UserName, ProfileImageURL, Details, At
//   - EnsureQuestion: QuestionID (pool position, informational), Question
//   - RecordAnswer / DeclarePreference: UserID, Question, Value, At
//   - Skip: UserID, Question, At
//
// For UpdateUserMetadata, ProfileImageURL and Details hold the merged result,
// not the request.
type Mutation struct {
	Kind            MutationKind
	UserID          string
	UserName        string
	QuestionID      int64
	Question        string
	Value           bool
	ProfileImageURL string
	Details         map[string]string
	At              time.Time
}

// Snapshot is the full persisted population.
type Snapshot struct {
	Questions []model.Question // pool order
	Users     []UserRecord     // registration order
}

// UserRecord is one persisted user with its answer, skip and preference rows.
type UserRecord struct {
	ID              string
	Name            string
	ProfileImageURL string
	Details         map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Answers         map[string]bool
	Skipped         []string
	Preferences     map[string]bool
}

// Store is a durable backing for the engine.
type Store interface {
	LoadAll(ctx context.Context) (*Snapshot, error)
	Apply(ctx context.Context, m Mutation) error
}

// CredentialRepository stores password hashes for account sign-up and login.
// Credentials are outside the engine: a user may exist without any.
type CredentialRepository interface {
	SetPasswordHash(ctx context.Context, userName, hash string) error
	// PasswordHash returns apperror.ErrNotFound when the user has no credentials.
	PasswordHash(ctx context.Context, userName string) (string, error)
}
