package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bbff-chat/apiserver/types"
)

// MessageRepository handles persistence for messages.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateInOwnedChat inserts the message only when message.ChatID names a
// chat owned by message.UserID. The ownership check and the insert are one
// statement, so a chat deleted in between cannot receive the message.
func (r *MessageRepository) CreateInOwnedChat(ctx context.Context, message types.Message) (types.Message, error) {
	const query = `
		INSERT INTO messages (chat_id, user_id, content)
		SELECT c.id, $2, $3
		FROM chats c
		WHERE c.id = $1 AND c.user_id = $2
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, message.ChatID, message.UserID, message.Content).Scan(&message.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, mapWriteError(err)
	}
	return message, nil
}

func (r *MessageRepository) ListByChat(ctx context.Context, chatID int) ([]types.Message, error) {
	const query = `SELECT id, chat_id, user_id, content FROM messages WHERE chat_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]types.Message, 0)
	for rows.Next() {
		var message types.Message
		if err := rows.Scan(&message.ID, &message.ChatID, &message.UserID, &message.Content); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// UpdateByAuthor rewrites the content of a message written by authorID.
func (r *MessageRepository) UpdateByAuthor(ctx context.Context, id, authorID int, content string) (types.Message, error) {
	const query = `
		UPDATE messages
		SET content = $1
		WHERE id = $2 AND user_id = $3
		RETURNING id, chat_id, user_id, content`
	var message types.Message
	err := r.db.QueryRowContext(ctx, query, content, id, authorID).Scan(
		&message.ID,
		&message.ChatID,
		&message.UserID,
		&message.Content,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, err
	}
	return message, nil
}

// DeleteByAuthor removes a message written by authorID and returns it.
func (r *MessageRepository) DeleteByAuthor(ctx context.Context, id, authorID int) (types.Message, error) {
	const query = `
		DELETE FROM messages
		WHERE id = $1 AND user_id = $2
		RETURNING id, chat_id, user_id, content`
	var message types.Message
	err := r.db.QueryRowContext(ctx, query, id, authorID).Scan(
		&message.ID,
		&message.ChatID,
		&message.UserID,
		&message.Content,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, err
	}
	return message, nil
}
