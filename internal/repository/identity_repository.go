package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// IdentityRepository defines persistence access for identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id int64) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	UpdateFlags(ctx context.Context, id int64, isAdmin, isActive bool, now time.Time) (*domain.Identity, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error
	ListAdmins(ctx context.Context) ([]domain.Identity, error)
	SearchByName(ctx context.Context, needle string, limit int) ([]domain.Identity, error)
}

type identityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository returns a Postgres-backed implementation.
func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

const identityColumns = `id, name, email, password_hash, is_admin, is_active, created_at, updated_at`

func (r *identityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	const query = `
        INSERT INTO identities (name, email, password_hash, is_admin, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		identity.Name,
		identity.Email,
		identity.PasswordHash,
		identity.IsAdmin,
		identity.IsActive,
		identity.CreatedAt,
		identity.UpdatedAt,
	).Scan(&identity.ID)
	return mapPgError(err)
}

func (r *identityRepository) GetByID(ctx context.Context, id int64) (*domain.Identity, error) {
	return r.fetchSingle(ctx, `SELECT `+identityColumns+` FROM identities WHERE id=$1`, id)
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.fetchSingle(ctx, `SELECT `+identityColumns+` FROM identities WHERE email=$1`, email)
}

func (r *identityRepository) UpdateFlags(ctx context.Context, id int64, isAdmin, isActive bool, now time.Time) (*domain.Identity, error) {
	const query = `
        UPDATE identities SET is_admin=$1, is_active=$2, updated_at=$3
        WHERE id=$4
        RETURNING ` + identityColumns
	return r.fetchSingle(ctx, query, isAdmin, isActive, now, id)
}

func (r *identityRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE identities SET password_hash=$1, updated_at=$2 WHERE id=$3`,
		passwordHash, now, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *identityRepository) ListAdmins(ctx context.Context) ([]domain.Identity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE is_admin AND is_active ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (r *identityRepository) SearchByName(ctx context.Context, needle string, limit int) ([]domain.Identity, error) {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return []domain.Identity{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE name ILIKE $1 ORDER BY name ASC, id ASC LIMIT $2`,
		"%"+escapeLike(needle)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (r *identityRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Identity, error) {
	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapPgError(err)
	}
	return identity, nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var identity domain.Identity
	if err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.Email,
		&identity.PasswordHash,
		&identity.IsAdmin,
		&identity.IsActive,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &identity, nil
}

func scanIdentities(rows pgx.Rows) ([]domain.Identity, error) {
	result := []domain.Identity{}
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *identity)
	}
	return result, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
