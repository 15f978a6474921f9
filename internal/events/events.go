// Package events encodes domain events and hands them to the broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bbff-chat/apiserver/internal/mq"
	"github.com/bbff-chat/apiserver/types"
	"github.com/google/uuid"
)

// AttrType is the message attribute carrying the event type.
const AttrType = "type"

// Publisher sends events to the configured broker channel. A Publisher
// built from a nil *mq.MQ accepts and drops every event.
type Publisher struct {
	mq  *mq.MQ
	now func() time.Time
}

func NewPublisher(m *mq.MQ) *Publisher {
	return &Publisher{mq: m, now: time.Now}
}

// Enabled reports whether events leave the process.
func (p *Publisher) Enabled() bool {
	return p != nil && p.mq != nil
}

// Publish fills in ID and OccurredAt when unset and sends the event.
func (p *Publisher) Publish(ctx context.Context, event types.Event) error {
	if !p.Enabled() {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if _, err := p.mq.Publish(ctx, payload, map[string]string{AttrType: event.Type}); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// Decode parses a delivered message back into an event.
func Decode(msg mq.Message) (types.Event, error) {
	var event types.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	return event, nil
}
