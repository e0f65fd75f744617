package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/webschedulr/scheduling/libs/db"
	"github.com/webschedulr/scheduling/libs/kafkax"
	otelx "github.com/webschedulr/scheduling/libs/otel"
)

const (
	// maxPublishBackoff caps the delay growth while Kafka is unreachable.
	maxPublishBackoff = 30 * time.Second
	// drainDelay follows a full batch: more rows are probably waiting.
	drainDelay = 50 * time.Millisecond
)

// Publisher drains unpublished outbox rows to Kafka. Each event type is its
// own topic; messages are keyed by aggregate id so per-appointment ordering
// survives partitioning. Rows stay row-locked until the whole batch is acked,
// so a crash mid-batch republishes rather than drops; consumers deduplicate
// on the event_id header.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	defer writer.Close()

	delay := p.pollEvery
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		published, err := p.publishBatch(ctx, writer)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("outbox publish failed", "err", err)
		}
		delay = p.nextDelay(delay, published, err)
		timer.Reset(delay)
	}
}

// nextDelay picks the wait before the next batch: exponential growth from the
// poll interval on failure, a short drain delay after a full batch, and the
// configured interval otherwise.
func (p *Publisher) nextDelay(current time.Duration, published int, err error) time.Duration {
	switch {
	case err != nil:
		next := current * 2
		if next < p.pollEvery {
			next = p.pollEvery
		}
		if next > maxPublishBackoff {
			next = maxPublishBackoff
		}
		return next
	case published >= p.batchSize:
		return drainDelay
	default:
		return p.pollEvery
	}
}

// publishBatch writes one locked batch as a single produce call and marks the
// rows published only after every message is acked.
func (p *Publisher) publishBatch(ctx context.Context, writer *kafka.Writer) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, rcd := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, rcd.Traceparent, rcd.Tracestate)
		headers := []kafka.Header{
			{Key: "event_id", Value: []byte(rcd.EventID)},
			{Key: "event_type", Value: []byte(rcd.EventType)},
		}
		msgs = append(msgs, kafka.Message{
			Topic:   rcd.EventType,
			Key:     []byte(rcd.AggregateID),
			Value:   rcd.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, headers),
		})
		ids = append(ids, rcd.ID)
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}

	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	p.logger.Debug("outbox batch published", "count", len(records))
	return len(records), nil
}
