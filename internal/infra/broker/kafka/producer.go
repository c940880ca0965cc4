package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"gigsocket/internal/app/eventstream"
	"gigsocket/internal/infra/obs"
)

const (
	specVersion     = "1.0"
	jsonContentType = "application/json"
	ceContentType   = "application/cloudevents+json"
)

// CloudEvent is the structured-mode envelope shared with the CRUD application.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// NewSyncProducer dials an idempotent producer that waits for all replicas.
func NewSyncProducer(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	return sarama.NewSyncProducer(brokers, cfg)
}

// Publisher writes committed domain events to one topic as CloudEvents keyed
// by aggregate id, so events of one booking stay ordered.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	source   string
	metrics  *obs.Metrics
}

var _ eventstream.Publisher = (*Publisher)(nil)

func NewPublisher(producer sarama.SyncProducer, topic, source string, metrics *obs.Metrics) *Publisher {
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	return &Publisher{producer: producer, topic: topic, source: source, metrics: metrics}
}

// EventsTopic names the topic this service writes booking events to.
func EventsTopic(prefix string) string {
	if prefix == "" {
		return "booking.events.v1"
	}
	return prefix + ".booking.events.v1"
}

func (p *Publisher) Publish(ctx context.Context, records ...eventstream.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(records))
	for _, rec := range records {
		msg, err := p.message(rec)
		if err != nil {
			p.metrics.PublishedEvents.WithLabelValues("encode_error").Inc()
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		p.metrics.PublishedEvents.WithLabelValues("error").Add(float64(failedCount(err, len(msgs))))
		return fmt.Errorf("kafka publish to %s: %w", p.topic, err)
	}
	p.metrics.PublishedEvents.WithLabelValues("ok").Add(float64(len(msgs)))
	return nil
}

func (p *Publisher) message(rec eventstream.EventRecord) (*sarama.ProducerMessage, error) {
	evt := CloudEvent{
		SpecVersion:     specVersion,
		ID:              rec.ID,
		Type:            rec.Name + ".v1",
		Source:          p.source,
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt.UTC(),
		DataContentType: jsonContentType,
		TraceParent:     rec.Headers["traceparent"],
		Data:            rec.Payload,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Name, err)
	}
	headers := []sarama.RecordHeader{
		{Key: []byte("content-type"), Value: []byte(ceContentType)},
		{Key: []byte("ce_id"), Value: []byte(evt.ID)},
		{Key: []byte("ce_type"), Value: []byte(evt.Type)},
		{Key: []byte("ce_source"), Value: []byte(evt.Source)},
	}
	for k, v := range rec.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(rec.Aggregate),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}, nil
}

func (p *Publisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func failedCount(err error, total int) int {
	var perrs sarama.ProducerErrors
	if errors.As(err, &perrs) && len(perrs) > 0 {
		return len(perrs)
	}
	return total
}
