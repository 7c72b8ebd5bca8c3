package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/reclaim/service/metrics"
	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the wallet address to form the event subject.
const SubjectPrefix = "reclaim.redemptions"

// Publisher defines the interface for publishing redemption events to NATS.
type Publisher interface {
	// PublishRedemption publishes an event to "reclaim.redemptions.{wallet}".
	PublishRedemption(ctx context.Context, event *RedemptionEvent) error

	// Close drains and closes the connection to NATS.
	Close() error
}

// Subject returns the subject an event for wallet is published on.
func Subject(wallet string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, wallet)
}

// CorePublisher publishes redemption events with core NATS. Events are
// notifications only; nothing is persisted and delivery is at-most-once.
type CorePublisher struct {
	nc      *nats.Conn
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher connects to NATS. If metrics is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*CorePublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("reclaim-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"subject_prefix", SubjectPrefix,
	)

	return &CorePublisher{
		nc:      nc,
		metrics: m,
		logger:  logger,
	}, nil
}

// PublishRedemption publishes a single redemption event.
func (p *CorePublisher) PublishRedemption(ctx context.Context, event *RedemptionEvent) error {
	subject := Subject(event.Wallet)
	start := time.Now()

	data, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal redemption event: %w", err)
	}

	err = p.nc.Publish(subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(SubjectPrefix, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish redemption event: %w", err)
	}

	p.logger.DebugContext(ctx, "published redemption event",
		"subject", subject,
		"event_id", event.EventID,
		"stage", event.Stage,
	)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *CorePublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	p.logger.Info("NATS publisher closed")
	return nil
}
