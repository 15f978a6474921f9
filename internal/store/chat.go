package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bbff-chat/apiserver/types"
)

// ChatRepository handles persistence for chats. Every read or write that
// targets a single chat is filtered by owner as well as id.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create returns ErrNotFound when chat.UserID names no user.
func (r *ChatRepository) Create(ctx context.Context, chat types.Chat) (types.Chat, error) {
	const query = `
		INSERT INTO chats (user_id, title)
		VALUES ($1, $2)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, chat.UserID, chat.Title).Scan(&chat.ID); err != nil {
		return types.Chat{}, mapWriteError(err)
	}
	return chat, nil
}

func (r *ChatRepository) ListByOwner(ctx context.Context, ownerID int) ([]types.Chat, error) {
	const query = `SELECT id, user_id, title FROM chats WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]types.Chat, 0)
	for rows.Next() {
		var chat types.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *ChatRepository) GetOwned(ctx context.Context, id, ownerID int) (types.Chat, error) {
	const query = `SELECT id, user_id, title FROM chats WHERE id = $1 AND user_id = $2`
	var chat types.Chat
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(&chat.ID, &chat.UserID, &chat.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, ErrNotFound
		}
		return types.Chat{}, err
	}
	return chat, nil
}

func (r *ChatRepository) UpdateTitle(ctx context.Context, id, ownerID int, title string) (types.Chat, error) {
	const query = `
		UPDATE chats
		SET title = $1
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, title`
	var chat types.Chat
	err := r.db.QueryRowContext(ctx, query, title, id, ownerID).Scan(&chat.ID, &chat.UserID, &chat.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, ErrNotFound
		}
		return types.Chat{}, err
	}
	return chat, nil
}

// Delete removes an owned chat; its messages go with it via ON DELETE CASCADE.
func (r *ChatRepository) Delete(ctx context.Context, id, ownerID int) error {
	const query = `DELETE FROM chats WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
