package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bbff-chat/apiserver/internal/storage"
	"github.com/bbff-chat/apiserver/internal/store"
	"github.com/bbff-chat/apiserver/types"
)

// ChatService manages chats. Every single-chat operation is scoped to the
// caller; a chat owned by someone else is indistinguishable from a missing
// one and yields store.ErrNotFound.
type ChatService struct {
	chats       ChatRepository
	messages    MessageRepository
	events      EventPublisher
	transcripts TranscriptStore
	now         func() time.Time
}

// NewChatService constructs a ChatService. A nil transcripts store disables
// Export.
func NewChatService(chats ChatRepository, messages MessageRepository, events EventPublisher, transcripts TranscriptStore) *ChatService {
	return &ChatService{
		chats:       chats,
		messages:    messages,
		events:      events,
		transcripts: transcripts,
		now:         time.Now,
	}
}

func (s *ChatService) Create(ctx context.Context, callerID int, title string) (types.Chat, error) {
	title, err := validTitle(title)
	if err != nil {
		return types.Chat{}, err
	}

	chat, err := s.chats.Create(ctx, types.Chat{UserID: callerID, Title: title})
	if err != nil {
		return types.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	publish(ctx, s.events, types.Event{
		Type:       types.EventChatCreated,
		ActorID:    callerID,
		ResourceID: chat.ID,
		ChatID:     chat.ID,
	})
	return chat, nil
}

func (s *ChatService) List(ctx context.Context, callerID int) ([]types.Chat, error) {
	return s.chats.ListByOwner(ctx, callerID)
}

func (s *ChatService) Get(ctx context.Context, callerID, id int) (types.Chat, error) {
	return s.chats.GetOwned(ctx, id, callerID)
}

func (s *ChatService) UpdateTitle(ctx context.Context, callerID, id int, title string) (types.Chat, error) {
	title, err := validTitle(title)
	if err != nil {
		return types.Chat{}, err
	}

	chat, err := s.chats.UpdateTitle(ctx, id, callerID, title)
	if err != nil {
		return types.Chat{}, err
	}
	publish(ctx, s.events, types.Event{
		Type:       types.EventChatUpdated,
		ActorID:    callerID,
		ResourceID: chat.ID,
		ChatID:     chat.ID,
	})
	return chat, nil
}

func (s *ChatService) Delete(ctx context.Context, callerID, id int) error {
	if err := s.chats.Delete(ctx, id, callerID); err != nil {
		return err
	}
	publish(ctx, s.events, types.Event{
		Type:       types.EventChatDeleted,
		ActorID:    callerID,
		ResourceID: id,
		ChatID:     id,
	})
	return nil
}

// ExportResult locates a stored transcript.
type ExportResult struct {
	Key        string
	ExportedAt int64
}

// Export writes the caller's chat and its messages to the transcript store.
func (s *ChatService) Export(ctx context.Context, callerID, id int) (ExportResult, error) {
	if s.transcripts == nil {
		return ExportResult{}, ErrExportDisabled
	}

	chat, err := s.chats.GetOwned(ctx, id, callerID)
	if err != nil {
		return ExportResult{}, err
	}
	messages, err := s.messages.ListByChat(ctx, chat.ID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("list messages: %w", err)
	}

	exportedAt := s.now().UTC()
	key := TranscriptKey(chat.ID, exportedAt)
	transcript := types.Transcript{
		Chat:       chat,
		Messages:   messages,
		ExportedAt: exportedAt.Unix(),
	}
	if err := s.transcripts.PutJSON(ctx, key, transcript); err != nil {
		return ExportResult{}, fmt.Errorf("store transcript: %w", err)
	}
	return ExportResult{Key: key, ExportedAt: transcript.ExportedAt}, nil
}

// Transcript loads the transcript of the caller's chat exported at the
// given Unix second. A foreign chat and a missing export both yield
// store.ErrNotFound.
func (s *ChatService) Transcript(ctx context.Context, callerID, id int, exportedAt int64) (types.Transcript, error) {
	key, err := s.ownedTranscriptKey(ctx, callerID, id, exportedAt)
	if err != nil {
		return types.Transcript{}, err
	}

	var transcript types.Transcript
	if err := s.transcripts.GetJSON(ctx, key, &transcript); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return types.Transcript{}, store.ErrNotFound
		}
		return types.Transcript{}, fmt.Errorf("load transcript: %w", err)
	}
	return transcript, nil
}

// DeleteTranscript removes one exported transcript of the caller's chat.
func (s *ChatService) DeleteTranscript(ctx context.Context, callerID, id int, exportedAt int64) error {
	key, err := s.ownedTranscriptKey(ctx, callerID, id, exportedAt)
	if err != nil {
		return err
	}
	var existing types.Transcript
	if err := s.transcripts.GetJSON(ctx, key, &existing); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("load transcript: %w", err)
	}
	if err := s.transcripts.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

func (s *ChatService) ownedTranscriptKey(ctx context.Context, callerID, id int, exportedAt int64) (string, error) {
	if s.transcripts == nil {
		return "", ErrExportDisabled
	}
	chat, err := s.chats.GetOwned(ctx, id, callerID)
	if err != nil {
		return "", err
	}
	return TranscriptKey(chat.ID, time.Unix(exportedAt, 0)), nil
}

// TranscriptKey is the object key of a chat transcript exported at t.
func TranscriptKey(chatID int, t time.Time) string {
	return fmt.Sprintf("chats/%d/transcript-%d.json", chatID, t.Unix())
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return title, nil
}
