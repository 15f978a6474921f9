package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbff-chat/apiserver/types"
)

// MessageService manages messages. Creating and listing require owning the
// parent chat; editing and deleting require authorship of the message,
// which is narrower: a chat owner cannot edit a message someone else wrote.
type MessageService struct {
	chats    ChatRepository
	messages MessageRepository
	events   EventPublisher
}

func NewMessageService(chats ChatRepository, messages MessageRepository, events EventPublisher) *MessageService {
	return &MessageService{chats: chats, messages: messages, events: events}
}

// Create posts into chatID. The ownership check and insert happen in one
// statement; store.ErrNotFound means the chat is missing or not the caller's.
func (s *MessageService) Create(ctx context.Context, callerID, chatID int, content string) (types.Message, error) {
	content, err := validContent(content)
	if err != nil {
		return types.Message{}, err
	}
	if chatID < 1 {
		return types.Message{}, fmt.Errorf("%w: chat_id is required", ErrInvalidInput)
	}

	message, err := s.messages.CreateInOwnedChat(ctx, types.Message{
		ChatID:  chatID,
		UserID:  callerID,
		Content: content,
	})
	if err != nil {
		return types.Message{}, err
	}
	publish(ctx, s.events, types.Event{
		Type:       types.EventMessageCreated,
		ActorID:    callerID,
		ResourceID: message.ID,
		ChatID:     message.ChatID,
	})
	return message, nil
}

func (s *MessageService) List(ctx context.Context, callerID, chatID int) ([]types.Message, error) {
	chat, err := s.chats.GetOwned(ctx, chatID, callerID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByChat(ctx, chat.ID)
}

func (s *MessageService) Update(ctx context.Context, callerID, id int, content string) (types.Message, error) {
	content, err := validContent(content)
	if err != nil {
		return types.Message{}, err
	}

	message, err := s.messages.UpdateByAuthor(ctx, id, callerID, content)
	if err != nil {
		return types.Message{}, err
	}
	publish(ctx, s.events, types.Event{
		Type:       types.EventMessageUpdated,
		ActorID:    callerID,
		ResourceID: message.ID,
		ChatID:     message.ChatID,
	})
	return message, nil
}

func (s *MessageService) Delete(ctx context.Context, callerID, id int) error {
	message, err := s.messages.DeleteByAuthor(ctx, id, callerID)
	if err != nil {
		return err
	}
	publish(ctx, s.events, types.Event{
		Type:       types.EventMessageDeleted,
		ActorID:    callerID,
		ResourceID: message.ID,
		ChatID:     message.ChatID,
	})
	return nil
}

func validContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	return content, nil
}
