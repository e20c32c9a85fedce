package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/auth"
	"github.com/sakif/people-match/internal/model"
	"github.com/sakif/people-match/internal/repository"
)

// GitHubIDDetail is the details key holding a user's GitHub account id.
const GitHubIDDetail = "github_id"

// AuthService handles account sign-up, password login and GitHub sign-in.
//
//	AuthHandler (HTTP) → AuthService → Registry              (the user)
//	                                 ↘ CredentialRepository  (the password hash)
//	                                 ↘ TokenService          (the session JWT)
//
// Accounts are ordinary registry users. A user registered through the
// matching API has no password until someone signs up under that name, which
// is refused: sign-up is strict even when the registry merges.
type AuthService struct {
	registry  *Registry
	creds     repository.CredentialRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService wires an AuthService. tokens may be nil, in which case
// results carry no token and sessions are disabled.
func NewAuthService(
	registry *Registry,
	creds repository.CredentialRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		registry:  registry,
		creds:     creds,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the signed-in user and its session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignUp creates a user with a password. A taken name is a Conflict.
func (s *AuthService) SignUp(ctx context.Context, name, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if s.registry.Exists(name) {
		return nil, apperror.Conflict("user", name)
	}

	// Hash first: a rejected password must not leave a half-created account.
	hash, err := s.passwords.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordLength) {
			return nil, apperror.ValidationFailed("password",
				fmt.Sprintf("password must be %d to %d bytes", auth.MinPasswordLength, auth.MaxPasswordLength))
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	u, err := s.registry.Register(ctx, name, "", nil)
	if err != nil {
		return nil, err
	}
	if err := s.creds.SetPasswordHash(ctx, u.Name, hash); err != nil {
		return nil, fmt.Errorf("service/auth: storing password for %q: %w", u.Name, err)
	}

	s.logger.Info("account created", slog.String("name", u.Name))
	return s.issue(u)
}

// Login checks a password. Unknown names and wrong passwords give the same
// Unauthorized error so callers cannot probe which names exist.
func (s *AuthService) Login(ctx context.Context, name, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	invalid := apperror.Unauthorized("invalid username or password")

	hash, err := s.creds.PasswordHash(ctx, name)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: reading credentials: %w", err)
	}

	if err := s.passwords.Verify(hash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("failed login", slog.String("name", name))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	u, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// LoginOrRegisterGitHub signs in a GitHub user under their login. First sight
// registers the user; later sign-ins refresh the avatar and contact details.
//
// The GitHub id is the identity, not the login: logins can be renamed and
// reused. A name that is already taken by anyone without the same github_id
// (a password account, a demo person, another GitHub account) is a Conflict.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	githubID := strconv.FormatInt(gh.ID, 10)
	details := map[string]string{GitHubIDDetail: githubID}
	if gh.Email != "" {
		details["email"] = gh.Email
	}
	if gh.Name != "" {
		details["display_name"] = gh.Name
	}

	u, err := s.registry.RegisterOwned(ctx, gh.Login, gh.AvatarURL, details, func(p *model.Profile) bool {
		return p.Details[GitHubIDDetail] == githubID
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Warn("GitHub sign-in refused: name belongs to another account",
				slog.String("name", gh.Login),
				slog.Int64("github_id", gh.ID),
			)
			return nil, apperror.Conflict("user", gh.Login)
		}
		return nil, fmt.Errorf("service/auth: registering GitHub user %q: %w", gh.Login, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("name", u.Name),
		slog.Int64("github_id", gh.ID),
	)
	return s.issue(u)
}

// ValidateToken returns the user name a session token was issued for.
func (s *AuthService) ValidateToken(token string) (string, error) {
	if s.tokens == nil {
		return "", apperror.Unauthorized("sessions are disabled")
	}
	name, err := s.tokens.Validate(token)
	if err != nil {
		return "", apperror.Unauthorized("invalid or expired token")
	}
	return name, nil
}

func (s *AuthService) issue(u *model.User) (*AuthResult, error) {
	res := &AuthResult{User: u}
	if s.tokens == nil {
		return res, nil
	}
	token, err := s.tokens.Generate(u.Name)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %q: %w", u.Name, err)
	}
	res.Token = token
	return res, nil
}
