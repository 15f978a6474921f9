package services

import (
	"context"
	"time"

	"github.com/bbff-chat/apiserver/internal/auth"
	"github.com/bbff-chat/apiserver/types"
	"github.com/rs/zerolog"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context) ([]types.User, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	CreateWithRole(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id int) (time.Time, error)
	Update(ctx context.Context, id int, update types.UserUpdate) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// ChatRepository defines owner-scoped persistence operations for chats.
type ChatRepository interface {
	Create(ctx context.Context, chat types.Chat) (types.Chat, error)
	ListByOwner(ctx context.Context, ownerID int) ([]types.Chat, error)
	GetOwned(ctx context.Context, id, ownerID int) (types.Chat, error)
	UpdateTitle(ctx context.Context, id, ownerID int, title string) (types.Chat, error)
	Delete(ctx context.Context, id, ownerID int) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	CreateInOwnedChat(ctx context.Context, message types.Message) (types.Message, error)
	ListByChat(ctx context.Context, chatID int) ([]types.Message, error)
	UpdateByAuthor(ctx context.Context, id, authorID int, content string) (types.Message, error)
	DeleteByAuthor(ctx context.Context, id, authorID int) (types.Message, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, storedHash string) bool
}

type TokenIssuer interface {
	Issue(identity auth.Identity) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event types.Event) error
}

// TranscriptStore persists exported transcripts. GetJSON reports a missing
// key with storage.ErrObjectNotFound.
type TranscriptStore interface {
	PutJSON(ctx context.Context, key string, value any) error
	GetJSON(ctx context.Context, key string, dst any) error
	Delete(ctx context.Context, key string) error
}

// publish sends an event without affecting the caller's outcome.
func publish(ctx context.Context, publisher EventPublisher, event types.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", event.Type).Int("resource_id", event.ResourceID).Msg("event publish failed")
	}
}
