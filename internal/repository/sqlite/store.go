package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// LoadAll reads the whole persisted population.
//
// Each query is drained and closed before the next one starts: the pool has a
// single connection, so an open *sql.Rows would block every other statement.
func (db *DB) LoadAll(ctx context.Context) (*repository.Snapshot, error) {
	snap := &repository.Snapshot{}

	questions, err := db.loadQuestions(ctx)
	if err != nil {
		return nil, err
	}
	snap.Questions = questions

	users, byID, err := db.loadUsers(ctx)
	if err != nil {
		return nil, err
	}

	if err := db.loadAnswers(ctx, byID); err != nil {
		return nil, err
	}
	if err := db.loadPreferences(ctx, byID); err != nil {
		return nil, err
	}

	snap.Users = make([]repository.UserRecord, 0, len(users))
	for _, u := range users {
		snap.Users = append(snap.Users, *u)
	}
	return snap, nil
}

func (db *DB) loadQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, text FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text); err != nil {
			return nil, fmt.Errorf("sqlite: scanning question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating questions: %w", err)
	}
	return questions, nil
}

func (db *DB) loadUsers(ctx context.Context) ([]*repository.UserRecord, map[string]*repository.UserRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, profile_image_url, details, created_at, updated_at
		 FROM users ORDER BY seq`)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []*repository.UserRecord
	byID := make(map[string]*repository.UserRecord)
	for rows.Next() {
		u := &repository.UserRecord{
			Answers:     make(map[string]bool),
			Preferences: make(map[string]bool),
		}
		var details string
		if err := rows.Scan(&u.ID, &u.Name, &u.ProfileImageURL, &details, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &u.Details); err != nil {
			return nil, nil, fmt.Errorf("sqlite: decoding details of user %q: %w", u.Name, err)
		}
		users = append(users, u)
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, byID, nil
}

func (db *DB) loadAnswers(ctx context.Context, byID map[string]*repository.UserRecord) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT a.user_id, q.text, a.answer, a.skipped
		 FROM answers a JOIN questions q ON q.id = a.question_id
		 ORDER BY q.id`)
	if err != nil {
		return fmt.Errorf("sqlite: listing answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID, text string
			answer       sql.NullBool
			skipped      bool
		)
		if err := rows.Scan(&userID, &text, &answer, &skipped); err != nil {
			return fmt.Errorf("sqlite: scanning answer: %w", err)
		}
		u, ok := byID[userID]
		if !ok {
			continue
		}
		if skipped {
			u.Skipped = append(u.Skipped, text)
			continue
		}
		if answer.Valid {
			u.Answers[text] = answer.Bool
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating answers: %w", err)
	}
	return nil
}

func (db *DB) loadPreferences(ctx context.Context, byID map[string]*repository.UserRecord) error {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.user_id, q.text, p.desired_answer
		 FROM preferences p JOIN questions q ON q.id = p.question_id`)
	if err != nil {
		return fmt.Errorf("sqlite: listing preferences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID, text string
			desired      bool
		)
		if err := rows.Scan(&userID, &text, &desired); err != nil {
			return fmt.Errorf("sqlite: scanning preference: %w", err)
		}
		if u, ok := byID[userID]; ok {
			u.Preferences[text] = desired
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating preferences: %w", err)
	}
	return nil
}

// Apply writes one engine mutation.
//
// Answer, skip and preference rows reference the question by text through a
// sub-select, so the engine never needs to know the row id. When the user or
// the question row is missing nothing is written and Apply returns
// apperror.ErrNotFound.
func (db *DB) Apply(ctx context.Context, m repository.Mutation) error {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}

	switch m.Kind {
	case repository.MutationRegisterUser:
		return db.insertUser(ctx, m, at)
	case repository.MutationUpdateUserMetadata:
		return db.updateUserMetadata(ctx, m, at)
	case repository.MutationEnsureQuestion:
		return db.insertQuestion(ctx, m)
	case repository.MutationRecordAnswer:
		return db.upsertAnswer(ctx, m.UserID, m.Question, sql.NullBool{Bool: m.Value, Valid: true}, false, at)
	case repository.MutationSkip:
		return db.upsertAnswer(ctx, m.UserID, m.Question, sql.NullBool{}, true, at)
	case repository.MutationDeclarePreference:
		return db.upsertPreference(ctx, m, at)
	default:
		return fmt.Errorf("sqlite: unknown mutation kind %q", m.Kind)
	}
}

func (db *DB) insertUser(ctx context.Context, m repository.Mutation, at time.Time) error {
	details, err := encodeDetails(m.Details)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, profile_image_url, details, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.UserID, m.UserName, m.ProfileImageURL, details, at, at,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %q: %w", m.UserName, err)
	}
	return nil
}

func (db *DB) updateUserMetadata(ctx context.Context, m repository.Mutation, at time.Time) error {
	details, err := encodeDetails(m.Details)
	if err != nil {
		return err
	}
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET profile_image_url = ?, details = ?, updated_at = ? WHERE id = ?`,
		m.ProfileImageURL, details, at, m.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %q: %w", m.UserName, err)
	}
	return requireRow(result, "user", m.UserName)
}

// insertQuestion keys the row by text only. Row ids are assigned by SQLite
// and only give the load order; the engine renumbers by position on restore,
// so a gap or a row written by another process never collides with the
// engine's own pool id.
func (db *DB) insertQuestion(ctx context.Context, m repository.Mutation) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO questions (text) VALUES (?) ON CONFLICT(text) DO NOTHING`,
		m.Question,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting question %q: %w", m.Question, err)
	}
	return nil
}

// upsertAnswer writes both answers and skips: a skip is a row with a NULL
// answer and skipped = 1.
func (db *DB) upsertAnswer(ctx context.Context, userID, question string, answer sql.NullBool, skipped bool, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO answers (user_id, question_id, answer, skipped, updated_at)
		 SELECT u.id, q.id, ?, ?, ?
		 FROM users u, questions q
		 WHERE u.id = ? AND q.text = ?
		 ON CONFLICT(user_id, question_id) DO UPDATE SET
		     answer = excluded.answer,
		     skipped = excluded.skipped,
		     updated_at = excluded.updated_at`,
		answer, skipped, at, userID, question,
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing answer (user=%s, question=%q): %w", userID, question, err)
	}
	return requireRow(result, "question", question)
}

func (db *DB) upsertPreference(ctx context.Context, m repository.Mutation, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO preferences (user_id, question_id, desired_answer, updated_at)
		 SELECT u.id, q.id, ?, ?
		 FROM users u, questions q
		 WHERE u.id = ? AND q.text = ?
		 ON CONFLICT(user_id, question_id) DO UPDATE SET
		     desired_answer = excluded.desired_answer,
		     updated_at = excluded.updated_at`,
		m.Value, at, m.UserID, m.Question,
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing preference (user=%s, question=%q): %w", m.UserID, m.Question, err)
	}
	return requireRow(result, "question", m.Question)
}

// requireRow maps "no row touched" to a not-found error.
func requireRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func encodeDetails(details map[string]string) (string, error) {
	if details == nil {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding details: %w", err)
	}
	return string(b), nil
}
