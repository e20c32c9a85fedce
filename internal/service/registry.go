package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/repository"
)

// MaxNameLength bounds user names. Names are otherwise free-form and
// case-sensitive: "Alex" and "alex" are different users.
const MaxNameLength = 64

// RegistrationPolicy decides what Register does with a name that is taken.
type RegistrationPolicy string

const (
	// MergeOnRegister treats a repeat registration as a profile update: a
	// non-empty image URL replaces the stored one and details are merged in.
	MergeOnRegister RegistrationPolicy = "merge"

	// RejectDuplicates fails a repeat registration with a Conflict error.
	RejectDuplicates RegistrationPolicy = "reject"
)

// ParseRegistrationPolicy maps a config value to a policy.
func ParseRegistrationPolicy(s string) (RegistrationPolicy, error) {
	switch p := RegistrationPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", MergeOnRegister:
		return MergeOnRegister, nil
	case RejectDuplicates:
		return RejectDuplicates, nil
	default:
		return "", fmt.Errorf("unknown registration policy %q", s)
	}
}

// Registry is the set of registered users, keyed by name, in registration order.
//
// The registry lock guards only the name index. Each *model.User carries its
// own lock for profile changes, so registering a new user never waits on a
// user who is answering questions.
type Registry struct {
	journal Journal
	policy  RegistrationPolicy
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	order  []*model.User
	byName map[string]*model.User
}

// NewRegistry creates an empty registry.
func NewRegistry(journal Journal, policy RegistrationPolicy, logger *slog.Logger) *Registry {
	if policy == "" {
		policy = MergeOnRegister
	}
	return &Registry{
		journal: journal,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		byName:  make(map[string]*model.User),
	}
}

// Register creates a user or, for a known name, applies the registration
// policy. Under MergeOnRegister the existing *model.User is returned with
// its metadata merged; answers, skips and preferences are untouched.
func (r *Registry) Register(ctx context.Context, name, profileImageURL string, details map[string]string) (*model.User, error) {
	return r.register(ctx, name, profileImageURL, details, nil)
}

// RegisterOwned is Register for an external identity. A new name is created
// as usual. An existing user is only taken over when owns reports true for
// its profile; otherwise the result is a Conflict and nothing changes. Under
// RejectDuplicates an owned user is returned without merging.
func (r *Registry) RegisterOwned(
	ctx context.Context,
	name, profileImageURL string,
	details map[string]string,
	owns func(p *model.Profile) bool,
) (*model.User, error) {
	return r.register(ctx, name, profileImageURL, details, owns)
}

func (r *Registry) register(
	ctx context.Context,
	name, profileImageURL string,
	details map[string]string,
	owns func(p *model.Profile) bool,
) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}

	if u, ok := r.lookup(name); ok {
		return r.reregister(ctx, u, profileImageURL, details, owns)
	}

	r.mu.Lock()
	// Another registration for the same name may have landed between lookup
	// and Lock. Fall back to the existing-user path outside the lock.
	if u, ok := r.byName[name]; ok {
		r.mu.Unlock()
		return r.reregister(ctx, u, profileImageURL, details, owns)
	}
	defer r.mu.Unlock()

	now := r.now()
	u := model.NewUser(xid.New().String(), name, now, profileImageURL, details)

	err := r.journal.Apply(ctx, repository.Mutation{
		Kind:            repository.MutationRegisterUser,
		UserID:          u.ID,
		UserName:        u.Name,
		ProfileImageURL: profileImageURL,
		Details:         details,
		At:              now,
	})
	if err != nil {
		r.logger.Error("failed to register user",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("registering user %q: %w", name, err)
	}

	r.byName[name] = u
	r.order = append(r.order, u)

	r.logger.Info("user registered",
		slog.String("id", u.ID),
		slog.String("name", u.Name),
	)
	return u, nil
}

func (r *Registry) reregister(
	ctx context.Context,
	u *model.User,
	profileImageURL string,
	details map[string]string,
	owns func(p *model.Profile) bool,
) (*model.User, error) {
	if owns != nil {
		owned := false
		u.View(func(p *model.Profile) { owned = owns(p) })
		if !owned {
			return nil, apperror.Conflict("user", u.Name)
		}
		if r.policy == RejectDuplicates {
			return u, nil
		}
	} else if r.policy == RejectDuplicates {
		return nil, apperror.Conflict("user", u.Name)
	}
	if profileImageURL == "" && len(details) == 0 {
		return u, nil
	}

	err := u.Update(func(p *model.Profile) error {
		// Ownership can only be lost to a concurrent merge, so check again
		// under the write lock.
		if owns != nil && !owns(p) {
			return apperror.Conflict("user", u.Name)
		}
		// Compute the merged result first; the journal stores the outcome.
		image := p.ProfileImageURL
		if profileImageURL != "" {
			image = profileImageURL
		}
		merged := maps.Clone(p.Details)
		if merged == nil {
			merged = make(map[string]string, len(details))
		}
		maps.Copy(merged, details)

		now := r.now()
		if err := r.journal.Apply(ctx, repository.Mutation{
			Kind:            repository.MutationUpdateUserMetadata,
			UserID:          u.ID,
			UserName:        u.Name,
			ProfileImageURL: image,
			Details:         merged,
			At:              now,
		}); err != nil {
			return err
		}

		p.MergeMetadata(profileImageURL, details)
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating user %q: %w", u.Name, err)
	}

	r.logger.Debug("user metadata merged", slog.String("name", u.Name))
	return u, nil
}

// Get returns the user registered under name.
func (r *Registry) Get(name string) (*model.User, error) {
	u, ok := r.lookup(name)
	if !ok {
		return nil, apperror.NotFound("user", name)
	}
	return u, nil
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// All returns every user in registration order. The slice is a copy; the
// users are shared.
func (r *Registry) All() []*model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.User, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// lookup normalizes name the way Register does.
func (r *Registry) lookup(name string) (*model.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byName[strings.TrimSpace(name)]
	return u, ok
}

// restore adds a persisted user without journaling. Duplicate names keep the
// first record.
func (r *Registry) restore(rec repository.UserRecord) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byName[rec.Name]; ok {
		return u
	}
	u := model.NewUser(rec.ID, rec.Name, rec.CreatedAt, rec.ProfileImageURL, rec.Details)
	r.byName[rec.Name] = u
	r.order = append(r.order, u)
	return u
}
