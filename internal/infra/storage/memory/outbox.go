package memory

import (
	"context"
	"sync"
	"time"

	"gigsocket/internal/app/eventstream"
	"gigsocket/internal/infra/outbox"
)

type outboxRow struct {
	entry   outbox.Entry
	state   string
	nextAt  time.Time
	lastErr string
}

// Outbox is a process-local spool for events Kafka rejected.
type Outbox struct {
	mu    sync.Mutex
	order []string
	rows  map[string]*outboxRow
	now   func() time.Time
}

var _ outbox.Spool = (*Outbox)(nil)

func NewOutbox(now func() time.Time) *Outbox {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Outbox{rows: make(map[string]*outboxRow), now: now}
}

func (o *Outbox) Add(ctx context.Context, record eventstream.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.rows[record.ID]; ok {
		return nil
	}
	o.rows[record.ID] = &outboxRow{entry: outbox.Entry{Record: record}, state: "NEW", nextAt: o.now()}
	o.order = append(o.order, record.ID)
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	for _, id := range o.order {
		row := o.rows[id]
		if (row.state == "NEW" || row.state == "FAILED") && !row.nextAt.After(now) {
			row.state = "CLAIMED"
			entry := row.entry
			return &entry, nil
		}
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if row, ok := o.rows[id]; ok {
		row.state = "SENT"
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if row, ok := o.rows[id]; ok {
		row.state = "FAILED"
		row.nextAt = next
		row.lastErr = errMsg
		row.entry.Attempts++
	}
	return nil
}

// Pending counts records not yet shipped.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, row := range o.rows {
		if row.state != "SENT" {
			n++
		}
	}
	return n
}
