// Package model defines the data structures used throughout the application.
package model

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// User is a registered participant, identified by a unique, case-sensitive name.
//
// IDENTITY VS PROFILE:
// ID, Name and CreatedAt never change after registration, so they are plain
// fields that anyone may read. Everything that can change (metadata, answers,
// preferences, skips) lives in Profile behind the user's own lock.
//
// The registry hands out *User pointers and never copies a User, so every
// holder of an earlier reference observes later updates.
//
// WHY ONE LOCK PER USER?
// Mutations for a user are serialized by this lock; mutations for different
// users never contend. Matching takes read locks one user at a time, so a
// search may observe one user before and another after a concurrent update.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`

	mu      sync.RWMutex
	profile Profile
}

// Profile is the mutable part of a User. Its methods do not lock; they are
// only reachable through User.Update and User.View, which hold the lock.
type Profile struct {
	ProfileImageURL string
	Details         map[string]string
	UpdatedAt       time.Time

	answers     map[string]bool     // question text → own answer
	preferences map[string]bool     // question text → answer wanted from a match
	skipped     map[string]struct{} // question texts deferred by the user
}

// NewUser builds a User with empty answers, preferences and skips.
// details is copied; a nil map is treated as empty.
func NewUser(id, name string, createdAt time.Time, profileImageURL string, details map[string]string) *User {
	d := make(map[string]string, len(details))
	maps.Copy(d, details)

	return &User{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		profile: Profile{
			ProfileImageURL: profileImageURL,
			Details:         d,
			UpdatedAt:       createdAt,
			answers:         make(map[string]bool),
			preferences:     make(map[string]bool),
			skipped:         make(map[string]struct{}),
		},
	}
}

// Update runs fn under the user's write lock. If fn returns an error it must
// not have modified the profile; Update returns that error unchanged.
func (u *User) Update(fn func(p *Profile) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(&u.profile)
}

// View runs fn under the user's read lock. fn must not retain p.
func (u *User) View(fn func(p *Profile)) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	fn(&u.profile)
}

// State returns the user's answer state for question.
func (u *User) State(question string) AnswerState {
	var s AnswerState
	u.View(func(p *Profile) { s = p.State(question) })
	return s
}

// Answers returns a copy of the user's answers.
func (u *User) Answers() map[string]bool {
	var out map[string]bool
	u.View(func(p *Profile) { out = maps.Clone(p.answers) })
	return out
}

// Preferences returns a copy of the user's preferences.
func (u *User) Preferences() map[string]bool {
	var out map[string]bool
	u.View(func(p *Profile) { out = maps.Clone(p.preferences) })
	return out
}

// Skipped returns the skipped question texts in sorted order.
func (u *User) Skipped() []string {
	var out []string
	u.View(func(p *Profile) { out = p.SkippedQuestions() })
	return out
}

// Snapshot returns a point-in-time copy of the user for rendering.
func (u *User) Snapshot() UserView {
	v := UserView{
		ID:        u.ID,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
	u.View(func(p *Profile) {
		v.ProfileImageURL = p.ProfileImageURL
		v.Details = maps.Clone(p.Details)
		v.UpdatedAt = p.UpdatedAt
		v.Answers = maps.Clone(p.answers)
		v.Preferences = maps.Clone(p.preferences)
		v.Skipped = p.SkippedQuestions()
	})
	return v
}

// UserView is an immutable copy of a User, safe to serialize.
type UserView struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	ProfileImageURL string            `json:"profileImageUrl,omitempty"`
	Details         map[string]string `json:"details"`
	Answers         map[string]bool   `json:"answers"`
	Preferences     map[string]bool   `json:"preferences"`
	Skipped         []string          `json:"skipped"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// RecordAnswer stores the user's own answer and clears any skip for the same
// question. Re-answering overwrites.
func (p *Profile) RecordAnswer(question string, answer bool) {
	p.answers[question] = answer
	delete(p.skipped, question)
}

// Skip defers question. A previously recorded answer is discarded: the answer
// becomes absent, not false.
func (p *Profile) Skip(question string) {
	delete(p.answers, question)
	p.skipped[question] = struct{}{}
}

// SetPreference records the answer this user wants a match to have given.
// It is independent of the user's own answer for the question.
func (p *Profile) SetPreference(question string, expected bool) {
	p.preferences[question] = expected
}

// MergeMetadata applies a re-registration: a non-empty image URL replaces the
// stored one and every detail key overwrites or augments the stored details.
func (p *Profile) MergeMetadata(profileImageURL string, details map[string]string) {
	if profileImageURL != "" {
		p.ProfileImageURL = profileImageURL
	}
	maps.Copy(p.Details, details)
}

// State returns the three-state answer for question.
func (p *Profile) State(question string) AnswerState {
	if answer, ok := p.answers[question]; ok {
		return answerStateOf(answer)
	}
	if _, ok := p.skipped[question]; ok {
		return AnswerSkipped
	}
	return AnswerUnset
}

// Answer returns the recorded answer and whether one exists.
func (p *Profile) Answer(question string) (bool, bool) {
	answer, ok := p.answers[question]
	return answer, ok
}

// IsSkipped reports whether question is currently skipped.
func (p *Profile) IsSkipped(question string) bool {
	_, ok := p.skipped[question]
	return ok
}

// Preferences returns a copy of the preference map.
func (p *Profile) Preferences() map[string]bool {
	return maps.Clone(p.preferences)
}

// AnswerCount returns how many questions the user has answered.
func (p *Profile) AnswerCount() int {
	return len(p.answers)
}

// SkippedQuestions returns the skipped question texts in sorted order.
func (p *Profile) SkippedQuestions() []string {
	return slices.Sorted(maps.Keys(p.skipped))
}
