package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedIdentity(t *testing.T, s *Store, name, email string, admin bool) *domain.Identity {
	t.Helper()
	identity := &domain.Identity{Name: name, Email: email, IsAdmin: admin, IsActive: true, CreatedAt: epoch, UpdatedAt: epoch}
	if err := s.Identities().Create(context.Background(), identity); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return identity
}

func seedTicket(t *testing.T, s *Store, owner int64, desc string, at time.Time) *domain.Ticket {
	t.Helper()
	ticket, err := domain.NewTicket(owner, desc, domain.TicketUrgencyNormal, domain.RequestTypeSoftware, at)
	if err != nil {
		t.Fatalf("NewTicket: %v", err)
	}
	if err := s.Tickets().Create(context.Background(), &ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return &ticket
}

func TestIdentities_DuplicateEmail(t *testing.T) {
	s := New()
	seedIdentity(t, s, "Ada", "ada@example.com", false)

	err := s.Identities().Create(context.Background(), &domain.Identity{Name: "Other", Email: "ada@example.com"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestIdentities_NotFound(t *testing.T) {
	s := New()
	if _, err := s.Identities().GetByID(context.Background(), 99); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Identities().GetByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Identities().UpdateFlags(context.Background(), 99, true, true, epoch); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIdentities_SearchAndAdmins(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedIdentity(t, s, "Grace Hopper", "grace@example.com", true)
	seedIdentity(t, s, "Ada Lovelace", "ada@example.com", false)
	inactive := seedIdentity(t, s, "Alan Turing", "alan@example.com", true)
	if _, err := s.Identities().UpdateFlags(ctx, inactive.ID, true, false, epoch); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}

	found, _ := s.Identities().SearchByName(ctx, "  LOVE ", 20)
	if len(found) != 1 || found[0].Name != "Ada Lovelace" {
		t.Fatalf("unexpected search result %+v", found)
	}
	empty, _ := s.Identities().SearchByName(ctx, "   ", 20)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", empty)
	}

	admins, _ := s.Identities().ListAdmins(ctx)
	if len(admins) != 1 || admins[0].Name != "Grace Hopper" {
		t.Fatalf("expected only the active admin, got %+v", admins)
	}
}

func TestTickets_ListFiltersAndPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedTicket(t, s, 1, fmt.Sprintf("vpn issue %d", i), epoch.Add(time.Duration(i)*time.Minute))
	}
	seedTicket(t, s, 2, "monitor flickers", epoch)

	owner := int64(1)
	page, err := s.Tickets().List(ctx, repository.TicketFilter{OwnerID: &owner, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page) != 2 || page[0].Description != "vpn issue 3" || page[1].Description != "vpn issue 2" {
		t.Fatalf("unexpected page %+v", page)
	}

	found, _ := s.Tickets().List(ctx, repository.TicketFilter{SearchTerm: "MONITOR"})
	if len(found) != 1 || found[0].CreatedByID != 2 {
		t.Fatalf("unexpected search result %+v", found)
	}

	beyond, _ := s.Tickets().List(ctx, repository.TicketFilter{Offset: 50})
	if len(beyond) != 0 {
		t.Fatalf("expected empty page, got %d", len(beyond))
	}
}

func TestTickets_UpdateKeepsOwnership(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := seedTicket(t, s, 1, "keyboard", epoch)

	changed := *ticket
	changed.CreatedByID = 42
	changed.Description = "keyboard and mouse"
	if err := s.Tickets().Update(ctx, &changed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stored, _ := s.Tickets().GetByID(ctx, ticket.ID)
	if stored.CreatedByID != 1 || stored.Description != "keyboard and mouse" {
		t.Fatalf("unexpected stored ticket %+v", stored)
	}
}

func TestTickets_DeleteCascadesComments(t *testing.T) {
	s := New()
	ctx := context.Background()
	author := seedIdentity(t, s, "Ada", "ada@example.com", false)
	ticket := seedTicket(t, s, author.ID, "laptop", epoch)
	if err := s.Comments().Create(ctx, &domain.Comment{TicketID: ticket.ID, AuthorID: author.ID, Body: "any news?", CreatedAt: epoch}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	entry := &domain.TicketHistory{TicketID: ticket.ID, ChangedByID: author.ID, ChangeType: domain.ChangeTypeContent, CreatedAt: epoch}
	if err := s.History().Create(ctx, entry); err != nil {
		t.Fatalf("create history: %v", err)
	}

	if err := s.Tickets().Delete(ctx, ticket.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Tickets().Delete(ctx, ticket.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	comments, _ := s.Comments().ListByTicket(ctx, ticket.ID)
	if len(comments) != 0 {
		t.Fatalf("expected comments to be removed, got %d", len(comments))
	}
	history, _ := s.History().ListByTicket(ctx, ticket.ID)
	if len(history) != 0 {
		t.Fatalf("expected history to be removed, got %d", len(history))
	}
	if err := s.History().Create(ctx, entry); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("history for a missing ticket: %v", err)
	}
}

func TestComments_OrderedWithAuthorName(t *testing.T) {
	s := New()
	ctx := context.Background()
	author := seedIdentity(t, s, "Ada", "ada@example.com", false)
	ticket := seedTicket(t, s, author.ID, "laptop", epoch)

	for i, body := range []string{"second", "first"} {
		at := epoch.Add(time.Duration(1-i) * time.Minute)
		if err := s.Comments().Create(ctx, &domain.Comment{TicketID: ticket.ID, AuthorID: author.ID, Body: body, CreatedAt: at}); err != nil {
			t.Fatalf("create comment: %v", err)
		}
	}

	comments, _ := s.Comments().ListByTicket(ctx, ticket.ID)
	if len(comments) != 2 || comments[0].Body != "first" || comments[1].Body != "second" {
		t.Fatalf("unexpected order %+v", comments)
	}
	if comments[0].AuthorName != "Ada" {
		t.Fatalf("expected author name, got %q", comments[0].AuthorName)
	}

	err := s.Comments().Create(ctx, &domain.Comment{TicketID: 404, AuthorID: author.ID, Body: "orphan"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing ticket, got %v", err)
	}
}

func TestStore_ConcurrentCreates(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, _ := domain.NewTicket(1, fmt.Sprintf("t%d", i), "", domain.RequestTypeOther, epoch)
			_ = s.Tickets().Create(context.Background(), &ticket)
		}(i)
	}
	wg.Wait()

	all, _ := s.Tickets().List(context.Background(), repository.TicketFilter{Limit: repository.MaxPageSize})
	if len(all) != 50 {
		t.Fatalf("expected 50 tickets, got %d", len(all))
	}
}
