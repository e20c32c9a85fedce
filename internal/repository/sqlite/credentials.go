package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/repository"
)

// compile-time check that *DB implements repository.CredentialRepository
var _ repository.CredentialRepository = (*DB)(nil)

// SetPasswordHash stores a bcrypt hash for an already registered user.
// The users row must exist: credentials are attached to a user, never create one.
func (db *DB) SetPasswordHash(ctx context.Context, userName, hash string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE name = ?`,
		hash, userName,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting password for %q: %w", userName, err)
	}
	return requireRow(result, "user", userName)
}

// PasswordHash returns the stored hash. A user without a password (demo
// people, GitHub sign-ins) is reported as not found, same as an unknown name.
func (db *DB) PasswordHash(ctx context.Context, userName string) (string, error) {
	var hash string
	err := db.conn.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE name = ?`, userName,
	).Scan(&hash)

	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.NotFound("credentials", userName)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: reading password for %q: %w", userName, err)
	}
	if hash == "" {
		return "", apperror.NotFound("credentials", userName)
	}
	return hash, nil
}
