package types

// Chat is a conversation thread owned by a single user.
type Chat struct {
	// ID is the unique identifier of the chat.
	ID int `json:"id" db:"id"`

	// UserID identifies the owner of the chat. Only the owner may read,
	// rename, delete or post into it.
	UserID int `json:"user_id" db:"user_id"`

	// Title is the human readable name of the chat.
	Title string `json:"title" db:"title"`
}

// Message is a single entry posted into a chat.
type Message struct {
	// ID is the unique identifier of the message.
	ID int `json:"id" db:"id"`

	// ChatID identifies the chat the message belongs to.
	ChatID int `json:"chat_id" db:"chat_id"`

	// UserID identifies the author. Only the author may edit or delete
	// the message, regardless of who owns the chat.
	UserID int `json:"user_id" db:"user_id"`

	// Content is the message body.
	Content string `json:"content" db:"content"`
}

// Transcript is the exported form of a chat and its messages.
type Transcript struct {
	Chat       Chat      `json:"chat"`
	Messages   []Message `json:"messages"`
	ExportedAt int64     `json:"exported_at"`
}
