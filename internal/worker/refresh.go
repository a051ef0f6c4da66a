package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/helpdesk-service/internal/repository"
)

const refreshOperation = "refresh"

// RefreshStatus is the outcome for one ticket.
type RefreshStatus string

const (
	RefreshProcessed RefreshStatus = "processed"
	RefreshSkipped   RefreshStatus = "skipped"
	RefreshFailed    RefreshStatus = "error"
)

// Marker remembers which refresh operations already completed.
type Marker interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// RedisMarker stores processed markers as expiring Redis keys.
type RedisMarker struct {
	client *redis.Client
}

func NewRedisMarker(client *redis.Client) *RedisMarker {
	return &RedisMarker{client: client}
}

func (m *RedisMarker) Seen(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check marker: %w", err)
	}
	return n > 0, nil
}

func (m *RedisMarker) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := m.client.Set(ctx, key, string(RefreshProcessed), ttl).Err(); err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

// RefreshKey is stable for one ticket and operation within a UTC day.
func RefreshKey(ticketID int64, operation string, at time.Time) string {
	raw := fmt.Sprintf("refresh:%s:%d:%s", operation, ticketID, at.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:32]
}

// RefreshOptions bound the job.
type RefreshOptions struct {
	Concurrency int
	MaxAttempts int
	BaseDelay   time.Duration
	MarkerTTL   time.Duration
	DryRun      bool
}

// RefreshResult describes what happened to one ticket.
type RefreshResult struct {
	TicketID int64
	Status   RefreshStatus
	Detail   string
}

// RefreshSummary aggregates a run.
type RefreshSummary struct {
	Total     int
	Processed int
	Skipped   int
	Errors    int
	Results   []RefreshResult
}

// TicketRefresher stamps updated_at on every ticket at most once per day.
type TicketRefresher struct {
	tickets repository.TicketRepository
	marker  Marker
	opts    RefreshOptions
	now     func() time.Time
	logger  *zap.Logger
}

func NewTicketRefresher(tickets repository.TicketRepository, marker Marker, opts RefreshOptions, now func() time.Time, logger *zap.Logger) *TicketRefresher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketRefresher{tickets: tickets, marker: marker, opts: opts, now: now, logger: logger}
}

// Run refreshes every ticket with at most Concurrency in flight. Per-ticket failures are
// reported in the summary; only listing the tickets can fail the run.
func (r *TicketRefresher) Run(ctx context.Context) (RefreshSummary, error) {
	ids, err := r.ticketIDs(ctx)
	if err != nil {
		return RefreshSummary{}, err
	}

	results := make([]RefreshResult, len(ids))
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = r.refreshOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	summary := RefreshSummary{Total: len(results), Results: results}
	for _, res := range results {
		switch res.Status {
		case RefreshProcessed:
			summary.Processed++
		case RefreshSkipped:
			summary.Skipped++
		case RefreshFailed:
			summary.Errors++
		}
	}
	return summary, nil
}

func (r *TicketRefresher) ticketIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	filter := repository.TicketFilter{Limit: repository.MaxPageSize}
	for {
		page, err := r.tickets.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list tickets: %w", err)
		}
		for _, t := range page {
			ids = append(ids, t.ID)
		}
		if len(page) < filter.Limit {
			return ids, nil
		}
		filter.Offset += len(page)
	}
}

func (r *TicketRefresher) refreshOne(ctx context.Context, id int64) RefreshResult {
	key := RefreshKey(id, refreshOperation, r.now())
	seen, err := r.marker.Seen(ctx, key)
	if err != nil {
		return RefreshResult{TicketID: id, Status: RefreshFailed, Detail: err.Error()}
	}
	if seen {
		return RefreshResult{TicketID: id, Status: RefreshSkipped, Detail: "already processed"}
	}

	attempt := 0
	var detail string
	backoff := retry.WithMaxRetries(uint64(r.opts.MaxAttempts-1), retry.NewExponential(r.opts.BaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		d, err := r.touch(ctx, id)
		if err == nil {
			err = r.marker.Mark(ctx, key, r.opts.MarkerTTL)
		}
		if err != nil {
			r.logger.Warn("ticket refresh attempt failed",
				zap.Int64("ticket_id", id),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.opts.MaxAttempts),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		detail = d
		return nil
	})
	if err != nil {
		return RefreshResult{TicketID: id, Status: RefreshFailed, Detail: err.Error()}
	}
	return RefreshResult{TicketID: id, Status: RefreshProcessed, Detail: detail}
}

func (r *TicketRefresher) touch(ctx context.Context, id int64) (string, error) {
	if r.opts.DryRun {
		return fmt.Sprintf("would refresh ticket %d", id), nil
	}
	ticket, err := r.tickets.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("ticket %d not found", id), nil
	}
	if err != nil {
		return "", err
	}
	ticket.UpdatedAt = r.now()
	if err := r.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Sprintf("ticket %d not found", id), nil
		}
		return "", err
	}
	return fmt.Sprintf("refreshed ticket %d", id), nil
}
