// Package intake consumes recommendation snapshots from the analysis service
// off a Redis stream.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nuvia/clearance/internal/domain/eligibility"
)

// Message is the JSON carried in the "data" field of each stream entry.
type Message struct {
	PatientID          string                       `json:"patient_id"`
	Callouts           []string                     `json:"callouts"`
	Recommendations    []eligibility.Recommendation `json:"recommendations"`
	SchedulingCategory string                       `json:"scheduling_category"`
	Summary            string                       `json:"summary"`
}

// Ingester stores a snapshot for a patient.
type Ingester interface {
	IngestSnapshot(ctx context.Context, patientID uuid.UUID, snap eligibility.RecommendationSnapshot) (*eligibility.RecommendationSnapshot, error)
}

type Options struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
	// RetryInterval is the first delay before the pending list is replayed.
	// It doubles while entries keep failing, up to maxRetryInterval.
	RetryInterval time.Duration
}

const (
	maxBackoff       = 30 * time.Second
	maxRetryInterval = 2 * time.Minute
)

// Consumer reads the stream through a consumer group. Entries are acked once
// stored, or once they are known never to succeed (malformed, unknown
// patient). Entries that failed because storage was unavailable stay pending
// and are replayed from the pending list at startup and then periodically
// with backoff. Block bounds how late a replay can start.
type Consumer struct {
	client   *redis.Client
	ingester Ingester
	logger   zerolog.Logger
	opts     Options
}

func NewConsumer(client *redis.Client, ingester Ingester, logger zerolog.Logger, opts Options) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	return &Consumer{
		client:   client,
		ingester: ingester,
		logger: logger.With().
			Str("component", "intake").
			Str("stream", opts.Stream).
			Str("consumer_group", opts.Group).
			Logger(),
		opts: opts,
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.opts.Group, c.opts.Stream, err)
	}
	return nil
}

// Run consumes until ctx is cancelled. Read failures back off exponentially
// up to 30 seconds.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info().Str("consumer", c.opts.Consumer).Msg("intake consumer started")

	retry := c.opts.RetryInterval
	nextReplay := time.Now()
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !time.Now().Before(nextReplay) {
			left, err := c.replayPending(ctx)
			switch {
			case ctx.Err() != nil:
				return nil
			case err != nil:
				c.logger.Warn().Err(err).Msg("replay of pending entries failed")
				retry = min(retry*2, maxRetryInterval)
			case left > 0:
				c.logger.Warn().Int("pending", left).Dur("retry_in", retry).Msg("intake entries still pending")
				retry = min(retry*2, maxRetryInterval)
			default:
				retry = c.opts.RetryInterval
			}
			nextReplay = time.Now().Add(retry)
		}

		if _, err := c.readBatch(ctx, ">"); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Dur("backoff", backoff).Msg("read intake stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
	}
}

// replayPending walks this consumer's pending list page by page from the
// start and returns how many entries are still pending afterwards.
func (c *Consumer) replayPending(ctx context.Context) (int, error) {
	start := "0"
	left := 0
	for {
		msgs, err := c.read(ctx, start)
		if err != nil {
			return left, err
		}
		if len(msgs) == 0 {
			return left, nil
		}
		left += len(msgs) - c.process(ctx, msgs)
		start = msgs[len(msgs)-1].ID
	}
}

// readBatch reads up to BatchSize entries starting after id (">" for new
// entries, "0" for this consumer's pending list) and handles each. It
// returns the number of entries read.
func (c *Consumer) readBatch(ctx context.Context, id string) (int, error) {
	msgs, err := c.read(ctx, id)
	if err != nil {
		return 0, err
	}
	c.process(ctx, msgs)
	return len(msgs), nil
}

func (c *Consumer) read(ctx context.Context, id string) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		Streams:  []string{c.opts.Stream, id},
		Count:    c.opts.BatchSize,
		Block:    c.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// process handles each entry and acks the ones that are done. It returns the
// number acked.
func (c *Consumer) process(ctx context.Context, msgs []redis.XMessage) int {
	acked := 0
	for _, msg := range msgs {
		if !c.handle(ctx, msg) {
			continue
		}
		if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, msg.ID).Err(); err != nil {
			c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("ack intake entry")
			continue
		}
		acked++
	}
	return acked
}

// handle processes one entry and reports whether it should be acked.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) bool {
	log := c.logger.With().Str("message_id", msg.ID).Logger()

	patientID, snap, err := decode(msg.Values)
	if err != nil {
		log.Error().Err(err).Msg("discarding malformed intake entry")
		return true
	}

	_, err = c.ingester.IngestSnapshot(ctx, patientID, snap)
	switch {
	case err == nil:
		log.Debug().Str("patient_id", patientID.String()).Msg("recommendation ingested")
		return true
	case errors.Is(err, eligibility.ErrNotFound), errors.Is(err, eligibility.ErrInvalidArgument):
		log.Error().Err(err).Str("patient_id", patientID.String()).Msg("discarding intake entry")
		return true
	default:
		log.Warn().Err(err).Str("patient_id", patientID.String()).Msg("intake entry left pending")
		return false
	}
}

func decode(values map[string]interface{}) (uuid.UUID, eligibility.RecommendationSnapshot, error) {
	raw, ok := values["data"].(string)
	if !ok {
		return uuid.Nil, eligibility.RecommendationSnapshot{}, errors.New(`entry has no "data" field`)
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return uuid.Nil, eligibility.RecommendationSnapshot{}, fmt.Errorf("decode data: %w", err)
	}
	id, err := uuid.Parse(m.PatientID)
	if err != nil {
		return uuid.Nil, eligibility.RecommendationSnapshot{}, fmt.Errorf("patient_id %q: %w", m.PatientID, err)
	}
	return id, eligibility.RecommendationSnapshot{
		Callouts:           m.Callouts,
		Recommendations:    m.Recommendations,
		SchedulingCategory: m.SchedulingCategory,
		Summary:            m.Summary,
	}, nil
}

// Publish appends m to stream in the layout the analysis service produces.
func Publish(ctx context.Context, client *redis.Client, stream string, m Message) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}
