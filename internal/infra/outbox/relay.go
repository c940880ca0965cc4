package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gigsocket/internal/app/eventstream"
)

// Entry is a spooled record and how often shipping it failed.
type Entry struct {
	Record   eventstream.EventRecord
	Attempts int
}

type Spool interface {
	Add(ctx context.Context, record eventstream.EventRecord) error
	Claim(ctx context.Context, workerID string) (*Entry, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

const (
	defaultInterval = 5 * time.Second
	maxBackoff      = 5 * time.Minute
)

// Relay publishes through next and spools whatever next rejects. Run drains
// the spool in the background.
type Relay struct {
	next     eventstream.Publisher
	spool    Spool
	logger   *slog.Logger
	interval time.Duration
	workerID string
	now      func() time.Time
}

var _ eventstream.Publisher = (*Relay)(nil)

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func NewRelay(next eventstream.Publisher, spool Spool, logger *slog.Logger, opts ...Option) *Relay {
	if next == nil || spool == nil {
		panic("outbox: publisher and spool are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		next:     next,
		spool:    spool,
		logger:   logger,
		interval: defaultInterval,
		workerID: uuid.NewString(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish succeeds once every record is either published or spooled.
func (r *Relay) Publish(ctx context.Context, records ...eventstream.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.next.Publish(ctx, records...)
	if err == nil {
		return nil
	}
	r.logger.WarnContext(ctx, "publish failed, spooling events", "count", len(records), "error", err)
	var spoolErr error
	for _, rec := range records {
		if aerr := r.spool.Add(ctx, rec); aerr != nil {
			spoolErr = errors.Join(spoolErr, fmt.Errorf("spool %s: %w", rec.ID, aerr))
		}
	}
	if spoolErr != nil {
		return errors.Join(err, spoolErr)
	}
	return nil
}

// Run drains the spool every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain ships every due record once and reports how many went out.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		entry, err := r.spool.Claim(ctx, r.workerID)
		if err != nil {
			return sent, fmt.Errorf("claim: %w", err)
		}
		if entry == nil {
			return sent, nil
		}
		id := entry.Record.ID
		if perr := r.next.Publish(ctx, entry.Record); perr != nil {
			next := r.now().Add(backoff(entry.Attempts + 1))
			if err := r.spool.MarkFailed(ctx, id, next, perr.Error()); err != nil {
				return sent, fmt.Errorf("mark failed %s: %w", id, err)
			}
			// the broker is still down; retry the rest on the next tick
			return sent, nil
		}
		if err := r.spool.MarkSent(ctx, id); err != nil {
			return sent, fmt.Errorf("mark sent %s: %w", id, err)
		}
		sent++
	}
}

// backoff doubles from one second per failed attempt, capped at maxBackoff.
func backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 10 {
		return maxBackoff
	}
	d := time.Second << (attempts - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
