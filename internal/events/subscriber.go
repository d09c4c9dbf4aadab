package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubscribeConn is the part of *nats.Conn the subscriber uses.
type SubscribeConn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// EventHandler defines the interface for handling events
type EventHandler interface {
	HandleCacheInvalidated(event *CacheInvalidatedEvent) error
}

// Subscriber handles NATS event subscriptions
type Subscriber struct {
	nc      SubscribeConn
	logger  *zap.Logger
	handler EventHandler
	subs    []*nats.Subscription
}

// NewSubscriber creates a new NATS subscriber
func NewSubscriber(nc SubscribeConn, handler EventHandler, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		nc:      nc,
		logger:  logger,
		handler: handler,
		subs:    make([]*nats.Subscription, 0),
	}
}

// Start subscribes to all relevant events
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(SubjectCacheInvalidated, s.handleCacheInvalidated)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectCacheInvalidated, err)
	}
	s.subs = append(s.subs, sub)
	s.logger.Info("Subscribed to event", zap.String("subject", SubjectCacheInvalidated))

	return nil
}

// Stop unsubscribes from all events
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	s.subs = s.subs[:0]
	s.logger.Info("NATS subscriber stopped")
}

// handleCacheInvalidated processes cache invalidation events
func (s *Subscriber) handleCacheInvalidated(msg *nats.Msg) {
	var event CacheInvalidatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.logger.Error("Failed to unmarshal cache invalidated event", zap.Error(err))
		return
	}

	s.logger.Info("Received cache invalidated event",
		zap.String("instance_id", event.InstanceID),
		zap.String("date_from", event.DateFrom),
		zap.String("date_to", event.DateTo),
	)

	if err := s.handler.HandleCacheInvalidated(&event); err != nil {
		s.logger.Error("Failed to handle cache invalidated event",
			zap.String("event_id", event.EventID.String()),
			zap.Error(err),
		)
	}
}
