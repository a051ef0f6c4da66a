// Package memstore keeps identities, tickets, comments and ticket history in process memory.
// It backs development runs without POSTGRES_DSN and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Store is a single lock-guarded dataset exposing the repository contracts.
type Store struct {
	mu sync.RWMutex

	identities map[int64]domain.Identity
	tickets    map[int64]domain.Ticket
	comments   map[int64]domain.Comment
	history    map[int64]domain.TicketHistory

	nextIdentity int64
	nextTicket   int64
	nextComment  int64
	nextHistory  int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		identities: make(map[int64]domain.Identity),
		tickets:    make(map[int64]domain.Ticket),
		comments:   make(map[int64]domain.Comment),
		history:    make(map[int64]domain.TicketHistory),
	}
}

// Identities returns the identity repository view.
func (s *Store) Identities() repository.IdentityRepository { return identityStore{s} }

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketStore{s} }

// Comments returns the comment repository view.
func (s *Store) Comments() repository.CommentRepository { return commentStore{s} }

// History returns the ticket history repository view.
func (s *Store) History() repository.TicketHistoryRepository { return historyStore{s} }

type identityStore struct{ s *Store }

func (r identityStore) Create(_ context.Context, identity *domain.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.identities {
		if existing.Email == identity.Email {
			return repository.ErrDuplicate
		}
	}
	r.s.nextIdentity++
	identity.ID = r.s.nextIdentity
	r.s.identities[identity.ID] = *identity
	return nil
}

func (r identityStore) GetByID(_ context.Context, id int64) (*domain.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &identity, nil
}

func (r identityStore) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, identity := range r.s.identities {
		if identity.Email == email {
			return &identity, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r identityStore) UpdateFlags(_ context.Context, id int64, isAdmin, isActive bool, now time.Time) (*domain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	identity.IsAdmin = isAdmin
	identity.IsActive = isActive
	identity.UpdatedAt = now
	r.s.identities[id] = identity
	return &identity, nil
}

func (r identityStore) UpdatePassword(_ context.Context, id int64, passwordHash string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	identity.UpdatedAt = now
	r.s.identities[id] = identity
	return nil
}

func (r identityStore) ListAdmins(_ context.Context) ([]domain.Identity, error) {
	return r.s.selectIdentities(func(i domain.Identity) bool { return i.IsAdmin && i.IsActive }, 0), nil
}

func (r identityStore) SearchByName(_ context.Context, needle string, limit int) ([]domain.Identity, error) {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return []domain.Identity{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return r.s.selectIdentities(func(i domain.Identity) bool {
		return strings.Contains(strings.ToLower(i.Name), needle)
	}, limit), nil
}

func (s *Store) selectIdentities(match func(domain.Identity) bool, limit int) []domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.Identity{}
	for _, identity := range s.identities {
		if match(identity) {
			result = append(result, identity)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

type ticketStore struct{ s *Store }

func (r ticketStore) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextTicket++
	ticket.ID = r.s.nextTicket
	r.s.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r ticketStore) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ticket = cloneTicket(ticket)
	return &ticket, nil
}

func (r ticketStore) Update(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := cloneTicket(*ticket)
	next.CreatedByID = current.CreatedByID
	next.CreatedAt = current.CreatedAt
	r.s.tickets[ticket.ID] = next
	return nil
}

func (r ticketStore) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tickets, id)
	for commentID, comment := range r.s.comments {
		if comment.TicketID == id {
			delete(r.s.comments, commentID)
		}
	}
	for entryID, entry := range r.s.history {
		if entry.TicketID == id {
			delete(r.s.history, entryID)
		}
	}
	return nil
}

func (r ticketStore) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	filter = filter.Normalize()
	needle := strings.ToLower(filter.SearchTerm)

	r.s.mu.RLock()
	matched := make([]domain.Ticket, 0, len(r.s.tickets))
	for _, ticket := range r.s.tickets {
		if matchesTicket(ticket, filter, needle) {
			matched = append(matched, cloneTicket(ticket))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Offset >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

func matchesTicket(t domain.Ticket, f repository.TicketFilter, needle string) bool {
	switch {
	case f.OwnerID != nil && t.CreatedByID != *f.OwnerID:
		return false
	case f.Status != nil && t.Status != *f.Status:
		return false
	case f.Urgency != nil && t.Urgency != *f.Urgency:
		return false
	case f.RequestType != nil && t.RequestType != *f.RequestType:
		return false
	case f.OperatorID != nil && (t.OperatorID == nil || *t.OperatorID != *f.OperatorID):
		return false
	case needle != "" && !strings.Contains(strings.ToLower(t.Description), needle):
		return false
	}
	return true
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.OperatorID != nil {
		id := *t.OperatorID
		t.OperatorID = &id
	}
	return t
}

type commentStore struct{ s *Store }

func (r commentStore) Create(_ context.Context, comment *domain.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[comment.TicketID]; !ok {
		return repository.ErrNotFound
	}
	r.s.nextComment++
	comment.ID = r.s.nextComment
	stored := *comment
	stored.AuthorName = ""
	r.s.comments[comment.ID] = stored
	return nil
}

func (r commentStore) ListByTicket(_ context.Context, ticketID int64) ([]domain.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := []domain.Comment{}
	for _, comment := range r.s.comments {
		if comment.TicketID != ticketID {
			continue
		}
		comment.AuthorName = r.s.identities[comment.AuthorID].Name
		result = append(result, comment)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

type historyStore struct{ s *Store }

func (r historyStore) Create(_ context.Context, history *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tickets[history.TicketID]; !ok {
		return repository.ErrNotFound
	}
	r.s.nextHistory++
	history.ID = r.s.nextHistory
	r.s.history[history.ID] = *history
	return nil
}

func (r historyStore) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := []domain.TicketHistory{}
	for _, entry := range r.s.history {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
