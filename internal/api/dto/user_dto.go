package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// RegisterRequest is the self-registration payload. Any is_admin field sent by the client is ignored.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

// ToInput converts the payload for the auth service.
func (r RegisterRequest) ToInput() service.RegisterInput {
	return service.RegisterInput{
		Name:     strings.TrimSpace(r.Name),
		Email:    strings.TrimSpace(r.Email),
		Password: r.Password,
	}
}

// LoginRequest accepts JSON {email, password} or an OAuth2 style form {username, password}.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password" validate:"required"`
}

// Login returns the identifier the caller logs in with.
func (r LoginRequest) Login() string {
	if email := strings.TrimSpace(r.Email); email != "" {
		return email
	}
	return strings.TrimSpace(r.Username)
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// UpdateFlagsRequest is an admin change of role or active state.
type UpdateFlagsRequest struct {
	IsAdmin  *bool `json:"is_admin"`
	IsActive *bool `json:"is_active"`
}

// ToPatch converts the payload for the auth service.
func (r UpdateFlagsRequest) ToPatch() service.FlagsPatch {
	return service.FlagsPatch{IsAdmin: r.IsAdmin, IsActive: r.IsActive}
}

// UserResponse is the public view of an identity. It never carries the password hash.
type UserResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserResponse maps an identity.
func NewUserResponse(identity *domain.Identity) UserResponse {
	return UserResponse{
		ID:        identity.ID,
		Name:      identity.Name,
		Email:     identity.Email,
		IsAdmin:   identity.IsAdmin,
		IsActive:  identity.IsActive,
		CreatedAt: identity.CreatedAt,
	}
}

// NewUserListResponse maps a slice of identities, never returning nil.
func NewUserListResponse(identities []domain.Identity) []UserResponse {
	out := make([]UserResponse, 0, len(identities))
	for i := range identities {
		out = append(out, NewUserResponse(&identities[i]))
	}
	return out
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenResponse maps a login result.
func NewTokenResponse(result *service.LoginResult) TokenResponse {
	return TokenResponse{Token: result.Token, TokenType: "bearer", ExpiresAt: result.ExpiresAt}
}
