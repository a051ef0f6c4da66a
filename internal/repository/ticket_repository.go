package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TicketFilter captures listing parameters. OwnerID scopes the result to one creator.
type TicketFilter struct {
	OwnerID     *int64
	Status      *domain.TicketStatus
	Urgency     *domain.TicketUrgency
	RequestType *domain.RequestType
	OperatorID  *int64
	SearchTerm  string
	Limit       int
	Offset      int
}

// Normalize clamps paging values into the accepted range.
func (f TicketFilter) Normalize() TicketFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.SearchTerm = strings.TrimSpace(f.SearchTerm)
	return f
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id int64) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, description, status, urgency, request_type, created_by_id, operator_id, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (description, status, urgency, request_type, created_by_id, operator_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		ticket.Description,
		ticket.Status,
		ticket.Urgency,
		ticket.RequestType,
		ticket.CreatedByID,
		ticket.OperatorID,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	).Scan(&ticket.ID)
	return mapPgError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if err != nil {
		return nil, mapPgError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET description=$1, status=$2, urgency=$3, request_type=$4, operator_id=$5, updated_at=$6
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Description,
		ticket.Status,
		ticket.Urgency,
		ticket.RequestType,
		ticket.OperatorID,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	filter = filter.Normalize()
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("created_by_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Urgency != nil {
		args = append(args, *filter.Urgency)
		clauses = append(clauses, fmt.Sprintf("urgency=$%d", len(args)))
	}
	if filter.RequestType != nil {
		args = append(args, *filter.RequestType)
		clauses = append(clauses, fmt.Sprintf("request_type=$%d", len(args)))
	}
	if filter.OperatorID != nil {
		args = append(args, *filter.OperatorID)
		clauses = append(clauses, fmt.Sprintf("operator_id=$%d", len(args)))
	}
	if filter.SearchTerm != "" {
		args = append(args, "%"+escapeLike(filter.SearchTerm)+"%")
		clauses = append(clauses, fmt.Sprintf("description ILIKE $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Description,
		&ticket.Status,
		&ticket.Urgency,
		&ticket.RequestType,
		&ticket.CreatedByID,
		&ticket.OperatorID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
