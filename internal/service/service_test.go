package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository/memstore"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const strongPassword = "Valid123!"

type fixture struct {
	store   *memstore.Store
	auth    *AuthService
	tickets *TicketService
	events  []events.Event
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New(), now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	tokens, err := auth.NewTokenManager("service-test-secret-with-enough-bytes", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	guard := auth.NewGuard(tokens, f.store.Identities(), clock)
	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketUpdated, events.EventTicketStatusChanged,
		events.EventTicketAssigned, events.EventTicketDeleted, events.EventCommentAdded,
	} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.events = append(f.events, e)
			return nil
		})
	}
	NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{EmailFrom: "noreply@example.com"}).RegisterHandlers()

	f.auth = NewAuthService(AuthDependencies{
		IdentityRepo: f.store.Identities(),
		Tokens:       tokens,
		Hasher:       auth.NewHasher(bcrypt.MinCost),
		Guard:        guard,
		Clock:        clock,
	})
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:   f.store.Tickets(),
		CommentRepo:  f.store.Comments(),
		IdentityRepo: f.store.Identities(),
		HistoryRepo:  f.store.History(),
		Guard:        guard,
		Dispatcher:   dispatcher,
		Clock:        clock,
	})
	return f
}

func (f *fixture) register(t *testing.T, name string) *domain.Identity {
	t.Helper()
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
	identity, err := f.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: strongPassword})
	if err != nil {
		t.Fatalf("Register %s: %v", name, err)
	}
	return identity
}

func (f *fixture) admin(t *testing.T, name string) *domain.Identity {
	t.Helper()
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
	admin, _, err := f.auth.SeedAdmin(context.Background(), SeedAdminInput{Email: email, Name: name, Password: strongPassword})
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	return admin
}

func (f *fixture) ticket(t *testing.T, owner *domain.Identity) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), owner, TicketCreateInput{
		Description: "VPN drops every hour",
		RequestType: domain.RequestTypeSoftware,
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	return ticket
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestRegister(t *testing.T) {
	f := newFixture(t)
	identity := f.register(t, "Ada Lovelace")

	if identity.IsAdmin || !identity.IsActive {
		t.Fatalf("registration must create an active regular identity: %+v", identity)
	}
	if identity.PasswordHash == strongPassword || identity.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}

	_, err := f.auth.Register(context.Background(), RegisterInput{Name: "Copy", Email: "ada.lovelace@example.com", Password: strongPassword})
	expectCode(t, err, apperrors.CodeValidation)
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.HTTPStatus != 400 || domainErr.Details["field"] != "email" {
		t.Fatalf("duplicate email must be a 400 on the email field, got %#v", err)
	}

	_, err = f.auth.Register(context.Background(), RegisterInput{Name: "Weak", Email: "weak@example.com", Password: "password"})
	expectCode(t, err, apperrors.CodeValidation)
	if !strings.Contains(err.Error(), "uppercase") {
		t.Fatalf("expected the violated rule in the message, got %v", err)
	}
}

func TestLogin_UniformFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := f.register(t, "Ada")
	f.register(t, "Disabled")
	admin := f.admin(t, "Root")
	disabled, _ := f.store.Identities().GetByEmail(ctx, "disabled@example.com")
	if _, err := f.auth.UpdateFlags(ctx, admin, disabled.ID, FlagsPatch{IsActive: ptr(false)}); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}

	result, err := f.auth.Login(ctx, ada.Email, strongPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.ExpiresAt.Equal(f.now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", result.ExpiresAt)
	}

	cases := []struct {
		name, email, password string
	}{
		{"unknown email", "ghost@example.com", strongPassword},
		{"wrong password", ada.Email, "Wrong123!"},
		{"inactive", "disabled@example.com", strongPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Login(ctx, tc.email, tc.password)
			expectCode(t, err, apperrors.CodeUnauthorized)
			if err.Error() != MsgBadCredentials {
				t.Fatalf("login failures must share one message, got %q", err.Error())
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := f.register(t, "Ada")

	err := f.auth.ChangePassword(ctx, ada, "Wrong123!", "Newer456?")
	expectCode(t, err, apperrors.CodeValidation)

	err = f.auth.ChangePassword(ctx, ada, strongPassword, "weak")
	expectCode(t, err, apperrors.CodeValidation)

	if err := f.auth.ChangePassword(ctx, ada, strongPassword, "Newer456?"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.auth.Login(ctx, ada.Email, strongPassword); err == nil {
		t.Fatalf("old password must stop working")
	}
	if _, err := f.auth.Login(ctx, ada.Email, "Newer456?"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestIdentityAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Root")
	ada := f.register(t, "Ada Lovelace")
	bob := f.register(t, "Bob")

	_, err := f.auth.ListOperators(ctx, ada)
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.auth.SearchUsers(ctx, ada, "bob")
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.auth.UpdateFlags(ctx, ada, bob.ID, FlagsPatch{IsAdmin: ptr(true)})
	expectCode(t, err, apperrors.CodeForbidden)

	if _, err := f.auth.GetUser(ctx, ada, ada.ID); err != nil {
		t.Fatalf("self read: %v", err)
	}
	_, err = f.auth.GetUser(ctx, ada, bob.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.auth.GetUser(ctx, admin, 999)
	expectCode(t, err, apperrors.CodeNotFound)

	found, err := f.auth.SearchUsers(ctx, admin, "LOVE")
	if err != nil || len(found) != 1 || found[0].ID != ada.ID {
		t.Fatalf("unexpected search result %+v (%v)", found, err)
	}
	empty, err := f.auth.SearchUsers(ctx, admin, "  ")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty query must return an empty list, got %#v (%v)", empty, err)
	}

	promoted, err := f.auth.UpdateFlags(ctx, admin, bob.ID, FlagsPatch{IsAdmin: ptr(true)})
	if err != nil || !promoted.IsAdmin || !promoted.IsActive {
		t.Fatalf("promotion failed: %+v (%v)", promoted, err)
	}
	operators, _ := f.auth.ListOperators(ctx, admin)
	if len(operators) != 2 {
		t.Fatalf("expected two operators, got %d", len(operators))
	}

	_, err = f.auth.UpdateFlags(ctx, admin, admin.ID, FlagsPatch{IsAdmin: ptr(false)})
	expectCode(t, err, apperrors.CodeValidation)
}

func TestSeedAdmin_PromotesExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := f.register(t, "Ada")

	promoted, created, err := f.auth.SeedAdmin(ctx, SeedAdminInput{Email: ada.Email, Password: "ignored"})
	if err != nil || created || !promoted.IsAdmin || promoted.ID != ada.ID {
		t.Fatalf("expected promotion of existing identity, got %+v created=%v (%v)", promoted, created, err)
	}

	_, _, err = f.auth.SeedAdmin(ctx, SeedAdminInput{Email: "new@example.com", Password: "weak"})
	expectCode(t, err, apperrors.CodeValidation)
}

func TestTickets_OwnershipAndScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Root")
	ada := f.register(t, "Ada")
	bob := f.register(t, "Bob")
	adaTicket := f.ticket(t, ada)
	f.ticket(t, bob)

	if adaTicket.Status != domain.TicketStatusNew || adaTicket.OperatorID != nil || adaTicket.CreatedByID != ada.ID {
		t.Fatalf("unexpected initial ticket %+v", adaTicket)
	}

	_, err := f.tickets.GetTicket(ctx, bob, adaTicket.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.tickets.GetTicket(ctx, bob, 9999)
	expectCode(t, err, apperrors.CodeNotFound)
	if _, err := f.tickets.GetTicket(ctx, admin, adaTicket.ID); err != nil {
		t.Fatalf("admin read: %v", err)
	}

	own, _ := f.tickets.ListTickets(ctx, ada, TicketListFilter{})
	if len(own) != 1 || own[0].ID != adaTicket.ID {
		t.Fatalf("regular users must only list their own tickets, got %+v", own)
	}
	all, _ := f.tickets.ListTickets(ctx, admin, TicketListFilter{})
	if len(all) != 2 {
		t.Fatalf("admins list every ticket, got %d", len(all))
	}
	_, err = f.tickets.ListTickets(ctx, admin, TicketListFilter{Status: ptr(domain.TicketStatus("bogus"))})
	expectCode(t, err, apperrors.CodeValidation)

	err = f.tickets.DeleteTicket(ctx, ada, adaTicket.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	if err := f.tickets.DeleteTicket(ctx, admin, adaTicket.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	_, err = f.tickets.GetTicket(ctx, admin, adaTicket.ID)
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestTickets_CreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ada := f.register(t, "Ada")

	_, err := f.tickets.CreateTicket(context.Background(), ada, TicketCreateInput{Description: " ", RequestType: domain.RequestTypeOther})
	expectCode(t, err, apperrors.CodeValidation)
	_, err = f.tickets.CreateTicket(context.Background(), nil, TicketCreateInput{Description: "x", RequestType: domain.RequestTypeOther})
	expectCode(t, err, apperrors.CodeUnauthorized)
}

func TestTickets_UpdateFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Root")
	ada := f.register(t, "Ada")
	ticket := f.ticket(t, ada)

	f.now = f.now.Add(time.Minute)
	updated, err := f.tickets.UpdateTicket(ctx, ada, ticket.ID, domain.TicketPatch{
		Description: ptr("VPN drops every 30 minutes"),
		Status:      ptr(domain.TicketStatusClosed),
		Operator:    domain.SetID(admin.ID),
	})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Description != "VPN drops every 30 minutes" || updated.Status != domain.TicketStatusNew || updated.OperatorID != nil {
		t.Fatalf("owner may only change the description: %+v", updated)
	}
	if !updated.UpdatedAt.Equal(f.now) {
		t.Fatalf("updated_at must be stamped")
	}

	_, err = f.tickets.UpdateTicket(ctx, admin, ticket.ID, domain.TicketPatch{Operator: domain.SetID(ada.ID)})
	expectCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.UpdateTicket(ctx, admin, ticket.ID, domain.TicketPatch{Status: ptr(domain.TicketStatusAssigned)})
	expectCode(t, err, apperrors.CodeInvalidTransition)
	stored, _ := f.tickets.GetTicket(ctx, admin, ticket.ID)
	if stored.Status != domain.TicketStatusNew {
		t.Fatalf("rejected patch must not persist, got %s", stored.Status)
	}

	f.events = nil
	assigned, err := f.tickets.UpdateTicket(ctx, admin, ticket.ID, domain.TicketPatch{Operator: domain.SetID(admin.ID)})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Status != domain.TicketStatusAssigned || *assigned.OperatorID != admin.ID {
		t.Fatalf("expected auto-assignment, got %+v", assigned)
	}
	types := map[events.EventType]bool{}
	for _, e := range f.events {
		types[e.Type] = true
	}
	if !types[events.EventTicketAssigned] || !types[events.EventTicketStatusChanged] || !types[events.EventTicketUpdated] {
		t.Fatalf("expected assignment events, got %v", types)
	}

	if _, err := f.tickets.UpdateTicket(ctx, admin, ticket.ID, domain.TicketPatch{Status: ptr(domain.TicketStatusClosed)}); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = f.tickets.UpdateTicket(ctx, admin, ticket.ID, domain.TicketPatch{Status: ptr(domain.TicketStatusPending)})
	expectCode(t, err, apperrors.CodeInvalidTransition)
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t, "Root")
	ada := f.register(t, "Ada")
	bob := f.register(t, "Bob")
	ticket := f.ticket(t, ada)

	if _, err := f.tickets.AddComment(ctx, ada, ticket.ID, "Any update?"); err != nil {
		t.Fatalf("owner comment: %v", err)
	}
	f.now = f.now.Add(time.Minute)
	reply, err := f.tickets.AddComment(ctx, admin, ticket.ID, "Looking into it")
	if err != nil {
		t.Fatalf("admin comment: %v", err)
	}
	if reply.AuthorName != "Root" {
		t.Fatalf("expected author name on the created comment, got %q", reply.AuthorName)
	}

	_, err = f.tickets.AddComment(ctx, bob, ticket.ID, "me too")
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.tickets.AddComment(ctx, ada, ticket.ID, "   ")
	expectCode(t, err, apperrors.CodeValidation)
	_, err = f.tickets.ListComments(ctx, bob, ticket.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.tickets.ListComments(ctx, ada, 404)
	expectCode(t, err, apperrors.CodeNotFound)

	thread, err := f.tickets.ListComments(ctx, ada, ticket.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(thread) != 2 || thread[0].AuthorName != "Ada" || thread[1].AuthorName != "Root" {
		t.Fatalf("unexpected thread %+v", thread)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := preview(strings.Repeat("é", 12), 10); got != strings.Repeat("é", 10)+"..." {
		t.Fatalf("unexpected %q", got)
	}
}

func TestListHistory_RecordsAppliedChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "Grace Hopper")
	stranger := f.register(t, "Alan Turing")
	admin := f.admin(t, "Root Admin")
	ticket := f.ticket(t, owner)

	f.now = f.now.Add(time.Minute)
	if _, err := f.tickets.UpdateTicket(ctx, admin, ticket.ID, domain.TicketPatch{Operator: domain.SetID(admin.ID)}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.tickets.UpdateTicket(ctx, admin, ticket.ID, domain.TicketPatch{Status: ptr(domain.TicketStatusNew)}); err == nil {
		t.Fatalf("expected rejected transition")
	}

	entries, err := f.tickets.ListHistory(ctx, owner, ticket.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected status and operator entries only, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ChangedByID != admin.ID || !e.CreatedAt.Equal(f.now) {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	_, err = f.tickets.ListHistory(ctx, stranger, ticket.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.tickets.ListHistory(ctx, owner, ticket.ID+100)
	expectCode(t, err, apperrors.CodeNotFound)
}
