// Package mq carries domain events to a message broker. The broker is
// chosen at startup from config; RabbitMQ, Google Pub/Sub and an in-process
// backend are supported.
package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bbff-chat/apiserver/config"
)

// Backend names accepted in MQConfig.Backend.
const (
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMemory   = "memory"
)

// ErrChannelRequired is returned when a channel name is blank.
var ErrChannelRequired = errors.New("mq: channel is required")

// Message is a broker-agnostic delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a delivery. A non-nil error requests redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by every broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ binds a backend to the channel events are published on.
type MQ struct {
	backend Backend
	channel string
}

// New wraps backend. Publish and Subscribe use channel.
func New(backend Backend, channel string) *MQ {
	return &MQ{backend: backend, channel: channel}
}

// Open builds the backend selected by cfg.Backend. An empty backend
// returns (nil, nil): event publishing is disabled.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	channel := strings.TrimSpace(cfg.Channel)
	switch cfg.Backend {
	case "":
		return nil, nil
	case BackendRabbitMQ:
		backend, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("open rabbitmq: %w", err)
		}
		return New(backend, channel), nil
	case BackendPubSub:
		backend, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("open pubsub: %w", err)
		}
		return New(backend, channel), nil
	case BackendMemory:
		return New(NewMemory(), channel), nil
	default:
		return nil, fmt.Errorf("mq: unknown backend %q", cfg.Backend)
	}
}

// Channel returns the channel name events are published on.
func (m *MQ) Channel() string {
	return m.channel
}

// Publish sends data to the configured channel and returns the message id.
func (m *MQ) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	if m.channel == "" {
		return "", ErrChannelRequired
	}
	return m.backend.Publish(ctx, m.channel, data, attrs)
}

// Subscribe blocks delivering messages from the configured channel until
// ctx is done or the backend fails.
func (m *MQ) Subscribe(ctx context.Context, handler Handler) error {
	if m.channel == "" {
		return ErrChannelRequired
	}
	return m.backend.Subscribe(ctx, m.channel, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}
