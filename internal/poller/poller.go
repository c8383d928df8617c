package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const retryDelay = time.Second

// Invalidator drops cached order reads.
type Invalidator interface {
	InvalidateOrders(ctx context.Context, userID, orderID string)
}

// StatusEvent is published by the backend whenever an order changes status.
type StatusEvent struct {
	OrderID domain.ID          `json:"order_id"`
	UserID  string             `json:"user_id"`
	Status  domain.OrderStatus `json:"status"`
}

// Poller consumes order status events and invalidates the matching cache
// entries, so order pages stop serving a stale status.
type Poller struct {
	reader *kafka.Reader
	cache  Invalidator
	log    logrus.FieldLogger
}

func NewPoller(cfg config.Kafka, cache Invalidator, log logrus.FieldLogger) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{
		reader: reader,
		cache:  cache,
		log:    log.WithField("topic", cfg.Topic),
	}
}

func (p *Poller) Run(ctx context.Context) {
	p.log.Info("order status poller started")
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			p.log.WithError(err).Error("error reading message")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		p.handleMessage(ctx, m.Value)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Error("error closing reader")
	}
}

func (p *Poller) handleMessage(ctx context.Context, value []byte) {
	var ev StatusEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		p.log.WithError(err).Warn("error parsing message")
		return
	}
	if ev.UserID == "" && ev.OrderID == "" {
		p.log.Warn("status event without order_id or user_id")
		return
	}

	p.cache.InvalidateOrders(ctx, ev.UserID, string(ev.OrderID))
	p.log.WithFields(logrus.Fields{
		"order_id": ev.OrderID,
		"user_id":  ev.UserID,
		"status":   ev.Status,
	}).Debug("order status changed")
}
