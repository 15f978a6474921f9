package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errMemoryClosed = errors.New("mq: memory backend closed")

const memoryBuffer = 64

// Memory is an in-process backend. Each subscriber receives every message
// published after it subscribed; nothing is retained for late subscribers.
// A subscriber whose buffer is full misses the message.
type Memory struct {
	mu     sync.Mutex
	subs   map[string][]chan Message
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan Message)}
}

func (m *Memory) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if channel == "" {
		return "", ErrChannelRequired
	}
	msg := Message{ID: uuid.NewString(), Data: append([]byte(nil), data...), Attributes: attrs}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errMemoryClosed
	}
	for _, sub := range m.subs[channel] {
		select {
		case sub <- msg:
		default:
		}
	}
	return msg.ID, nil
}

// Subscribe delivers until ctx is done. Handler errors redeliver the
// message once more before it is dropped.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if channel == "" {
		return ErrChannelRequired
	}
	sub := make(chan Message, memoryBuffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errMemoryClosed
	}
	m.subs[channel] = append(m.subs[channel], sub)
	m.mu.Unlock()

	defer m.unsubscribe(channel, sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub:
			if !ok {
				return errMemoryClosed
			}
			if err := handler(ctx, msg); err != nil {
				_ = handler(ctx, msg)
			}
		}
	}
}

func (m *Memory) unsubscribe(channel string, target chan Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[channel]
	for i, sub := range subs {
		if sub == target {
			m.subs[channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subscribers reports how many subscribers are attached to channel.
func (m *Memory) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for channel, subs := range m.subs {
		for _, sub := range subs {
			close(sub)
		}
		delete(m.subs, channel)
	}
	return nil
}
