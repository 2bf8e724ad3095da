package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"limit-orderbook/pkg/journal"
	"limit-orderbook/pkg/obs"
)

// Writer is the part of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source is the outbox the publisher drains. Truncate drops records that
// are already acknowledged.
type Source interface {
	Pending(limit int) ([]journal.Record, error)
	Ack(seq uint64) error
	Truncate(seq uint64) error
}

type Config struct {
	FlushInterval time.Duration
	BatchSize     int
}

// Publisher forwards journaled events to Kafka. A record is acknowledged
// only after its batch was written, so delivery is at least once.
type Publisher struct {
	source Source
	writer Writer
	cfg    Config
	obs    *obs.Client
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func New(source Source, writer Writer, cfg Config, client *obs.Client) *Publisher {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if client == nil {
		client = &obs.Client{}
	}
	return &Publisher{source: source, writer: writer, cfg: cfg, obs: client}
}

// Drain flushes until a batch comes back short or a flush fails.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.Flush(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < p.cfg.BatchSize {
			return total, nil
		}
	}
}

// Run drains on every tick until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	p.obs.LogNotice(ctx, "publisher.started interval=%s batch=%d", p.cfg.FlushInterval, p.cfg.BatchSize)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.obs.LogNotice(ctx, "publisher.stopped")
			return
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil {
				p.obs.LogErr(ctx, "publisher.flush failed: %v", err)
			}
		}
	}
}

// Flush publishes one batch of pending records and returns how many were
// acknowledged.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	records, err := p.source.Pending(p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read pending: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msg, err := toMessage(rec)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		publishErrors.Inc()
		return 0, fmt.Errorf("write %d messages: %w", len(msgs), err)
	}

	last := records[len(records)-1].Seq
	if err := p.source.Ack(last); err != nil {
		return 0, fmt.Errorf("ack %d: %w", last, err)
	}
	messagesPublished.Add(float64(len(msgs)))
	if err := p.source.Truncate(last); err != nil {
		// acked records stay on disk until a later truncate succeeds
		p.obs.LogErr(ctx, "publisher.truncate failed: seq=%d err=%v", last, err)
	}
	p.obs.LogDebug(ctx, "publisher.flush published=%d acked=%d", len(msgs), last)
	return len(msgs), nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func toMessage(rec journal.Record) (kafka.Message, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode record %d: %w", rec.Seq, err)
	}
	return kafka.Message{
		Key:   []byte(rec.Event.Symbol),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(rec.Event.Type)},
			{Key: "seq", Value: []byte(strconv.FormatUint(rec.Seq, 10))},
		},
	}, nil
}
