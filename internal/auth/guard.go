package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// MsgUnauthenticated is the single message for every authentication failure.
const MsgUnauthenticated = "could not validate credentials"

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

// Resource identifies the owner of the entity an action targets.
// The zero value is an unowned resource.
type Resource struct {
	OwnerID int64
}

// TicketResource returns the resource view of a ticket.
func TicketResource(t *domain.Ticket) Resource {
	if t == nil {
		return Resource{}
	}
	return Resource{OwnerID: t.CreatedByID}
}

// IdentityResource returns the resource view of an identity record, owned by itself.
func IdentityResource(id int64) Resource {
	return Resource{OwnerID: id}
}

// IdentityLookup is the slice of identity persistence the guard needs.
type IdentityLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Identity, error)
}

// Guard resolves bearer tokens to identities and applies the action table.
type Guard struct {
	tokens     *TokenManager
	identities IdentityLookup
	now        func() time.Time
}

// NewGuard constructs a guard.
func NewGuard(tokens *TokenManager, identities IdentityLookup, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{tokens: tokens, identities: identities, now: now}
}

// ResolveIdentity validates token and loads the active identity it names.
func (g *Guard) ResolveIdentity(ctx context.Context, token string) (*domain.Identity, error) {
	id, err := g.tokens.Validate(token, g.now())
	if err != nil {
		return nil, apperrors.NewUnauthorized(MsgUnauthenticated)
	}

	identity, err := g.identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized(MsgUnauthenticated)
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	if !identity.IsActive {
		return nil, apperrors.NewUnauthorized(MsgUnauthenticated)
	}
	return identity, nil
}

// Authorize decides whether identity may perform action on resource.
func (g *Guard) Authorize(identity *domain.Identity, action Action, resource Resource) Decision {
	return authorize(identity, action, resource)
}

// Require returns a forbidden error when Authorize denies.
func (g *Guard) Require(identity *domain.Identity, action Action, resource Resource) error {
	if authorize(identity, action, resource) == Allow {
		return nil
	}
	if identity == nil && rules[action] != ruleAnyone {
		return apperrors.NewUnauthorized(MsgUnauthenticated)
	}
	return apperrors.NewForbidden(fmt.Sprintf("not permitted to %s", action))
}

// TicketScope returns the owner filter for ticket listings; nil means every ticket.
func (g *Guard) TicketScope(identity *domain.Identity) *int64 {
	if identity.Role() == domain.RoleAdmin {
		return nil
	}
	var id int64
	if identity != nil {
		id = identity.ID
	}
	return &id
}

func authorize(identity *domain.Identity, action Action, resource Resource) Decision {
	r, ok := rules[action]
	if !ok {
		return Deny
	}
	if r == ruleAnyone {
		return Allow
	}
	if identity == nil || !identity.IsActive {
		return Deny
	}

	switch r {
	case ruleAuthenticated:
		return Allow
	case ruleAdmin:
		if identity.IsAdmin {
			return Allow
		}
	case ruleAdminOrOwner:
		if identity.IsAdmin || (resource.OwnerID != 0 && resource.OwnerID == identity.ID) {
			return Allow
		}
	}
	return Deny
}
