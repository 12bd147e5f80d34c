// Package events publishes eligibility status changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/nuvia/clearance/internal/domain/eligibility"
)

const (
	TypeStatusChanged = "patient.status_changed"

	defaultBuffer       = 256
	defaultWriteTimeout = 10 * time.Second
)

// StatusChangedEvent is the JSON value of every published message. The key
// is the patient id, so one patient's events stay on one partition in order.
type StatusChangedEvent struct {
	Type string `json:"type"`
	eligibility.StatusChange
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for topic that hashes keys to partitions.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// Publisher implements eligibility.Notifier. StatusChanged only enqueues; a
// single goroutine writes to Kafka in order. When the buffer is full the
// event is dropped and logged.
type Publisher struct {
	w            messageWriter
	logger       zerolog.Logger
	writeTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan kafka.Message
	done    chan struct{}
	dropped atomic.Int64
}

func NewPublisher(w messageWriter, logger zerolog.Logger, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	p := &Publisher{
		w:            w,
		logger:       logger.With().Str("component", "events").Logger(),
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan kafka.Message, buffer),
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) StatusChanged(_ context.Context, ch eligibility.StatusChange) {
	value, err := json.Marshal(StatusChangedEvent{Type: TypeStatusChanged, StatusChange: ch})
	if err != nil {
		p.logger.Error().Err(err).Str("patient_id", ch.PatientID.String()).Msg("encode status event")
		return
	}
	msg := kafka.Message{
		Key:   []byte(ch.PatientID.String()),
		Value: value,
		Time:  ch.At,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ch, "publisher closed")
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.drop(ch, "buffer full")
	}
}

func (p *Publisher) drop(ch eligibility.StatusChange, reason string) {
	p.dropped.Add(1)
	p.logger.Warn().
		Str("patient_id", ch.PatientID.String()).
		Str("to", ch.To.String()).
		Str("reason", reason).
		Msg("status event dropped")
}

// Dropped is the number of events discarded since start.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		err := p.w.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			p.logger.Error().Err(err).Str("patient_id", string(msg.Key)).Msg("publish status event")
		}
	}
}

// Close stops accepting events, flushes what is queued and closes the
// writer. It gives up waiting when ctx ends.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		return errors.Join(fmt.Errorf("flush status events: %w", ctx.Err()), p.w.Close())
	}
	return p.w.Close()
}

// BrokerCheck returns a health probe that succeeds when any broker accepts a
// connection.
func BrokerCheck(brokers []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			return conn.Close()
		}
		if len(errs) == 0 {
			return errors.New("no kafka brokers configured")
		}
		return errors.Join(errs...)
	}
}
