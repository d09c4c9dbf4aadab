package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PublishConn is the part of *nats.Conn the publisher uses.
type PublishConn interface {
	Publish(subj string, data []byte) error
}

// Publisher handles publishing events to NATS
type Publisher struct {
	nc         PublishConn
	instanceID string
	logger     *zap.Logger
}

// NewPublisher creates a new NATS publisher. instanceID is stamped on every
// event so instances can ignore their own broadcasts.
func NewPublisher(nc PublishConn, instanceID string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, instanceID: instanceID, logger: logger}
}

// InstanceID returns the ID stamped on published events.
func (p *Publisher) InstanceID() string {
	return p.instanceID
}

// PublishFetchCompleted publishes a fetch completed event
func (p *Publisher) PublishFetchCompleted(event *FetchCompletedEvent) error {
	p.stamp(&event.EventID, &event.InstanceID, &event.Timestamp)
	return p.publish(SubjectFetchCompleted, event)
}

// PublishCacheInvalidated publishes a cache invalidated event
func (p *Publisher) PublishCacheInvalidated(event *CacheInvalidatedEvent) error {
	p.stamp(&event.EventID, &event.InstanceID, &event.Timestamp)
	return p.publish(SubjectCacheInvalidated, event)
}

func (p *Publisher) stamp(id *uuid.UUID, instanceID *string, ts *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if *instanceID == "" {
		*instanceID = p.instanceID
	}
	if ts.IsZero() {
		*ts = time.Now().UTC()
	}
}

func (p *Publisher) publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	p.logger.Debug("Published event", zap.String("subject", subject), zap.Int("bytes", len(data)))
	return nil
}
