package types

import "time"

// Event types published after successful mutations.
const (
	EventUserRegistered = "user.registered"
	EventUserUpdated    = "user.updated"
	EventUserDeleted    = "user.deleted"
	EventChatCreated    = "chat.created"
	EventChatUpdated    = "chat.updated"
	EventChatDeleted    = "chat.deleted"
	EventMessageCreated = "message.created"
	EventMessageUpdated = "message.updated"
	EventMessageDeleted = "message.deleted"
)

// Event describes a change to a user, chat or message.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is one of the Event* constants.
	Type string `json:"type"`

	// ActorID is the user who performed the change.
	ActorID int `json:"actor_id"`

	// ResourceID is the id of the user, chat or message that changed.
	ResourceID int `json:"resource_id"`

	// ChatID is set for message events.
	ChatID int `json:"chat_id,omitempty"`

	// OccurredAt is when the change was committed.
	OccurredAt time.Time `json:"occurred_at"`
}
