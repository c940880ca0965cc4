package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"gigsocket/internal/domain/shared/events"
)

// EventRecord is one encoded domain event on its way to Kafka. Headers carry
// the W3C trace context of the request that raised it.
type EventRecord struct {
	ID         string
	Name       string
	Aggregate  string
	OccurredAt time.Time
	Payload    []byte
	Headers    map[string]string
}

// Publisher ships committed domain events to the shared event stream.
type Publisher interface {
	Publish(ctx context.Context, records ...EventRecord) error
}

// Stream turns drained aggregate events into records for a Publisher.
type Stream struct {
	pub   Publisher
	newID func() string
	trace propagation.TextMapPropagator
}

// NewStream falls back to Discard without a publisher and to random UUIDs
// without an id source.
func NewStream(pub Publisher, newID func() string) *Stream {
	if pub == nil {
		pub = Discard{}
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Stream{pub: pub, newID: newID, trace: propagation.TraceContext{}}
}

func (s *Stream) Record(ctx context.Context, ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	carrier := propagation.MapCarrier{}
	s.trace.Inject(ctx, carrier)
	return EventRecord{
		ID:         s.newID(),
		Name:       ev.EventName(),
		Aggregate:  ev.AggregateID(),
		OccurredAt: ev.OccurredAt().UTC(),
		Payload:    payload,
		Headers:    carrier,
	}, nil
}

// Emit publishes evs as one batch. An event that fails to encode stops the
// whole batch.
func (s *Stream) Emit(ctx context.Context, evs ...events.DomainEvent) error {
	if len(evs) == 0 {
		return nil
	}
	batch := make([]EventRecord, len(evs))
	for i, ev := range evs {
		rec, err := s.Record(ctx, ev)
		if err != nil {
			return err
		}
		batch[i] = rec
	}
	return s.pub.Publish(ctx, batch...)
}

// Discard drops every record. It stands in when no stream is configured.
type Discard struct{}

func (Discard) Publish(context.Context, ...EventRecord) error { return nil }
