package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/easybook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/easybook/libs/otel"
	"github.com/segmentio/kafka-go"
)

type Source interface {
	Claim(ctx context.Context, limit int, publish func([]Record) error) (int, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	source    Source
	writer    MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(source Source, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		source:    source,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishOnce(ctx)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox events published", "count", n)
			}
		}
	}
}

// PublishOnce ships one batch. Nothing is marked published if any write fails.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	return p.source.Claim(ctx, p.batchSize, func(records []Record) error {
		msgs := make([]kafka.Message, 0, len(records))
		for _, r := range records {
			msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
			msgs = append(msgs, kafka.Message{
				Topic:   r.EventType,
				Key:     []byte(r.AggregateID),
				Value:   r.Payload,
				Headers: kafkax.InjectTraceHeaders(msgCtx, kafkax.MetaHeaders(kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType})),
			})
		}
		return p.writer.WriteMessages(ctx, msgs...)
	})
}
