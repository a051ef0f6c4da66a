package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// MsgBadCredentials is returned for every failed login, whatever the cause.
const MsgBadCredentials = "incorrect email or password"

// SearchLimit caps name search results.
const SearchLimit = 20

// AuthService coordinates registration, login and identity administration.
type AuthService struct {
	identities repository.IdentityRepository
	tokens     *auth.TokenManager
	hasher     *auth.Hasher
	guard      *auth.Guard
	now        func() time.Time
	logger     *zap.Logger
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	IdentityRepo repository.IdentityRepository
	Tokens       *auth.TokenManager
	Hasher       *auth.Hasher
	Guard        *auth.Guard
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuthService{
		identities: deps.IdentityRepo,
		tokens:     deps.Tokens,
		hasher:     deps.Hasher,
		guard:      deps.Guard,
		now:        deps.Clock,
		logger:     deps.Logger,
	}
}

// RegisterInput is the self-registration payload. It has no admin flag.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginResult carries an issued bearer token.
type LoginResult struct {
	Identity  *domain.Identity
	Token     string
	ExpiresAt time.Time
}

// FlagsPatch is an administrative change of role or active state.
type FlagsPatch struct {
	IsAdmin  *bool
	IsActive *bool
}

// Register creates an active regular identity.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Identity, error) {
	if err := s.guard.Require(nil, auth.ActionUserRegister, auth.Resource{}); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" || email == "" {
		return nil, apperrors.NewValidationError("name and email are required", nil)
	}
	if ok, reason := auth.ValidateStrength(input.Password); !ok {
		return nil, apperrors.NewValidationError(reason, map[string]any{"field": "password"})
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	identity := &domain.Identity{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      false,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewValidationError("email already registered", map[string]any{"field": "email"})
		}
		return nil, mapRepoError(err, "identity")
	}
	s.logger.Info("identity registered", zap.Int64("identity_id", identity.ID))
	return identity, nil
}

// Login verifies credentials and issues a token. Unknown email, wrong password and
// inactive identity are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	identity, err := s.identities.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, mapRepoError(err, "identity")
		}
		s.hasher.VerifyDummy(password)
		return nil, apperrors.NewUnauthorized(MsgBadCredentials)
	}
	if !s.hasher.Verify(identity.PasswordHash, password) || !identity.IsActive {
		return nil, apperrors.NewUnauthorized(MsgBadCredentials)
	}

	token, expiresAt, err := s.tokens.Issue(identity.ID, s.now())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Identity: identity, Token: token, ExpiresAt: expiresAt}, nil
}

// ChangePassword replaces the caller's credential after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, actor *domain.Identity, currentPassword, newPassword string) error {
	if actor == nil {
		return apperrors.NewUnauthorized(auth.MsgUnauthenticated)
	}
	if !s.hasher.Verify(actor.PasswordHash, currentPassword) {
		return apperrors.NewValidationError("current password is incorrect", map[string]any{"field": "current_password"})
	}
	if ok, reason := auth.ValidateStrength(newPassword); !ok {
		return apperrors.NewValidationError(reason, map[string]any{"field": "new_password"})
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.identities.UpdatePassword(ctx, actor.ID, hash, s.now()); err != nil {
		return mapRepoError(err, "identity")
	}
	s.logger.Info("password changed", zap.Int64("identity_id", actor.ID))
	return nil
}

// GetUser returns an identity visible to actor.
func (s *AuthService) GetUser(ctx context.Context, actor *domain.Identity, id int64) (*domain.Identity, error) {
	if err := s.guard.Require(actor, auth.ActionUserRead, auth.IdentityResource(id)); err != nil {
		return nil, err
	}
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "user")
	}
	return identity, nil
}

// UpdateFlags changes role or active state of an identity.
func (s *AuthService) UpdateFlags(ctx context.Context, actor *domain.Identity, id int64, patch FlagsPatch) (*domain.Identity, error) {
	if err := s.guard.Require(actor, auth.ActionUserUpdateFlags, auth.IdentityResource(id)); err != nil {
		return nil, err
	}
	target, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "user")
	}

	isAdmin, isActive := target.IsAdmin, target.IsActive
	if patch.IsAdmin != nil {
		isAdmin = *patch.IsAdmin
	}
	if patch.IsActive != nil {
		isActive = *patch.IsActive
	}
	if target.ID == actor.ID && (!isAdmin || !isActive) {
		return nil, apperrors.NewValidationError("admins cannot revoke their own access", nil)
	}

	updated, err := s.identities.UpdateFlags(ctx, id, isAdmin, isActive, s.now())
	if err != nil {
		return nil, mapRepoError(err, "user")
	}
	s.logger.Info("identity flags updated",
		zap.Int64("identity_id", id),
		zap.Int64("by", actor.ID),
		zap.Bool("is_admin", isAdmin),
		zap.Bool("is_active", isActive))
	return updated, nil
}

// ListOperators returns the active admins tickets can be assigned to.
func (s *AuthService) ListOperators(ctx context.Context, actor *domain.Identity) ([]domain.Identity, error) {
	if err := s.guard.Require(actor, auth.ActionOperatorList, auth.Resource{}); err != nil {
		return nil, err
	}
	operators, err := s.identities.ListAdmins(ctx)
	if err != nil {
		return nil, mapRepoError(err, "user")
	}
	return operators, nil
}

// SearchUsers matches names case-insensitively. An empty query matches nothing.
func (s *AuthService) SearchUsers(ctx context.Context, actor *domain.Identity, query string) ([]domain.Identity, error) {
	if err := s.guard.Require(actor, auth.ActionUserSearch, auth.Resource{}); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Identity{}, nil
	}
	found, err := s.identities.SearchByName(ctx, query, SearchLimit)
	if err != nil {
		return nil, mapRepoError(err, "user")
	}
	return found, nil
}

// SeedAdminInput configures the bootstrap administrator.
type SeedAdminInput struct {
	Email    string
	Name     string
	Password string
}

// SeedAdmin creates the administrator, or promotes and reactivates an existing identity
// with the same email. It reports whether a new identity was created.
func (s *AuthService) SeedAdmin(ctx context.Context, input SeedAdminInput) (*domain.Identity, bool, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, false, apperrors.NewValidationError("admin email is required", nil)
	}

	existing, err := s.identities.GetByEmail(ctx, email)
	switch {
	case err == nil:
		promoted, err := s.identities.UpdateFlags(ctx, existing.ID, true, true, s.now())
		if err != nil {
			return nil, false, mapRepoError(err, "identity")
		}
		return promoted, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, mapRepoError(err, "identity")
	}

	if ok, reason := auth.ValidateStrength(input.Password); !ok {
		return nil, false, apperrors.NewValidationError(reason, map[string]any{"field": "password"})
	}
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "Admin"
	}

	now := s.now()
	admin := &domain.Identity{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.identities.Create(ctx, admin); err != nil {
		return nil, false, mapRepoError(err, "identity")
	}
	return admin, true, nil
}
