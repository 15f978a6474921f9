package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bbff-chat/apiserver/types"
)

// Memory is an in-process store with the same contracts as the SQL
// repositories: owner and author filters, unique usernames and emails,
// the fixed role registry and the account deletion cascade. It serves
// local runs without Postgres and tests.
type Memory struct {
	mu       sync.Mutex
	roles    map[string]int
	users    map[int]types.User
	chats    map[int]types.Chat
	messages map[int]types.Message
	nextID   map[string]int
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		roles:    map[string]int{types.RoleUser: 1, types.RoleAdmin: 2},
		users:    make(map[int]types.User),
		chats:    make(map[int]types.Chat),
		messages: make(map[int]types.Message),
		nextID:   make(map[string]int),
		now:      time.Now,
	}
}

func (m *Memory) Users() *MemoryUsers       { return &MemoryUsers{m} }
func (m *Memory) Chats() *MemoryChats       { return &MemoryChats{m} }
func (m *Memory) Messages() *MemoryMessages { return &MemoryMessages{m} }

func (m *Memory) id(table string) int {
	m.nextID[table]++
	return m.nextID[table]
}

type MemoryUsers struct{ m *Memory }

func (r *MemoryUsers) List(context.Context) ([]types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	users := make([]types.User, 0, len(r.m.users))
	for _, user := range r.m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUsers) GetByID(_ context.Context, id int) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, user := range r.m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.taken(0, username, email), nil
}

func (m *Memory) taken(exceptID int, username, email string) bool {
	for _, user := range m.users {
		if user.ID == exceptID {
			continue
		}
		if (username != "" && user.Username == username) || (email != "" && user.Email == email) {
			return true
		}
	}
	return false
}

func (r *MemoryUsers) CreateWithRole(_ context.Context, user types.User) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.roles[user.Role]; !ok {
		return types.User{}, ErrRoleNotFound
	}
	if r.m.taken(0, user.Username, user.Email) {
		return types.User{}, ErrConflict
	}
	user.ID = r.m.id("users")
	user.LastLogin = nil
	r.m.users[user.ID] = user
	return user, nil
}

func (r *MemoryUsers) TouchLastLogin(_ context.Context, id int) (time.Time, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	now := r.m.now()
	user.LastLogin = &now
	r.m.users[id] = user
	return now, nil
}

func (r *MemoryUsers) Update(_ context.Context, id int, update types.UserUpdate) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if update.Role != nil {
		if _, ok := r.m.roles[*update.Role]; !ok {
			return types.User{}, ErrRoleNotFound
		}
	}
	user, ok := r.m.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}

	var username, email string
	if update.Username != nil {
		username = *update.Username
	}
	if update.Email != nil {
		email = *update.Email
	}
	if r.m.taken(id, username, email) {
		return types.User{}, ErrConflict
	}

	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	r.m.users[id] = user
	return user, nil
}

func (r *MemoryUsers) Delete(_ context.Context, id int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[id]; !ok {
		return ErrNotFound
	}
	for messageID, message := range r.m.messages {
		if message.UserID == id || r.m.chats[message.ChatID].UserID == id {
			delete(r.m.messages, messageID)
		}
	}
	for chatID, chat := range r.m.chats {
		if chat.UserID == id {
			delete(r.m.chats, chatID)
		}
	}
	delete(r.m.users, id)
	return nil
}

type MemoryChats struct{ m *Memory }

func (r *MemoryChats) Create(_ context.Context, chat types.Chat) (types.Chat, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[chat.UserID]; !ok {
		return types.Chat{}, ErrNotFound
	}
	chat.ID = r.m.id("chats")
	r.m.chats[chat.ID] = chat
	return chat, nil
}

func (r *MemoryChats) ListByOwner(_ context.Context, ownerID int) ([]types.Chat, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	chats := make([]types.Chat, 0)
	for _, chat := range r.m.chats {
		if chat.UserID == ownerID {
			chats = append(chats, chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
	return chats, nil
}

func (r *MemoryChats) GetOwned(_ context.Context, id, ownerID int) (types.Chat, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.ownedChat(id, ownerID)
}

func (m *Memory) ownedChat(id, ownerID int) (types.Chat, error) {
	chat, ok := m.chats[id]
	if !ok || chat.UserID != ownerID {
		return types.Chat{}, ErrNotFound
	}
	return chat, nil
}

func (r *MemoryChats) UpdateTitle(_ context.Context, id, ownerID int, title string) (types.Chat, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	chat, err := r.m.ownedChat(id, ownerID)
	if err != nil {
		return types.Chat{}, err
	}
	chat.Title = title
	r.m.chats[id] = chat
	return chat, nil
}

func (r *MemoryChats) Delete(_ context.Context, id, ownerID int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, err := r.m.ownedChat(id, ownerID); err != nil {
		return err
	}
	for messageID, message := range r.m.messages {
		if message.ChatID == id {
			delete(r.m.messages, messageID)
		}
	}
	delete(r.m.chats, id)
	return nil
}

type MemoryMessages struct{ m *Memory }

func (r *MemoryMessages) CreateInOwnedChat(_ context.Context, message types.Message) (types.Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, err := r.m.ownedChat(message.ChatID, message.UserID); err != nil {
		return types.Message{}, err
	}
	message.ID = r.m.id("messages")
	r.m.messages[message.ID] = message
	return message, nil
}

func (r *MemoryMessages) ListByChat(_ context.Context, chatID int) ([]types.Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	messages := make([]types.Message, 0)
	for _, message := range r.m.messages {
		if message.ChatID == chatID {
			messages = append(messages, message)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

func (r *MemoryMessages) UpdateByAuthor(_ context.Context, id, authorID int, content string) (types.Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	message, ok := r.m.messages[id]
	if !ok || message.UserID != authorID {
		return types.Message{}, ErrNotFound
	}
	message.Content = content
	r.m.messages[id] = message
	return message, nil
}

func (r *MemoryMessages) DeleteByAuthor(_ context.Context, id, authorID int) (types.Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	message, ok := r.m.messages[id]
	if !ok || message.UserID != authorID {
		return types.Message{}, ErrNotFound
	}
	delete(r.m.messages, id)
	return message, nil
}
