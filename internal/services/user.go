package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bbff-chat/apiserver/internal/auth"
	"github.com/bbff-chat/apiserver/internal/store"
	"github.com/bbff-chat/apiserver/types"
)

// UserService encapsulates registration, login and account management.
//
// The admin variants (UpdateAny, DeleteAny) act by id alone and do not
// check the caller's role; the HTTP layer gates them to admins.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	events EventPublisher
}

func NewUserService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, events EventPublisher) *UserService {
	return &UserService{repo: repo, hasher: hasher, tokens: tokens, events: events}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

type RegisterResult struct {
	User  types.User
	Role  string
	Token string
}

// Register creates the account and its role assignment atomically and
// returns a fresh session token.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return RegisterResult{}, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = types.RoleUser
	}

	exists, err := s.repo.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return RegisterResult{}, ErrUserExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.CreateWithRole(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		Role:         in.Role,
		PasswordHash: hash,
	})
	switch {
	case errors.Is(err, store.ErrRoleNotFound):
		return RegisterResult{}, ErrUnknownRole
	case errors.Is(err, store.ErrConflict):
		return RegisterResult{}, ErrUserExists
	case err != nil:
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(identityOf(user))
	if err != nil {
		return RegisterResult{}, err
	}

	publish(ctx, s.events, types.Event{
		Type:       types.EventUserRegistered,
		ActorID:    user.ID,
		ResourceID: user.ID,
	})
	return RegisterResult{User: user, Role: user.Role, Token: token}, nil
}

// Login returns store.ErrNotFound for an unknown username and
// ErrInvalidCredentials for a wrong password. The token carries the role
// stored at this moment.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	if _, err := s.repo.TouchLastLogin(ctx, user.ID); err != nil {
		return "", fmt.Errorf("record login: %w", err)
	}
	return s.tokens.Issue(identityOf(user))
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile lets a caller change their own username or email.
func (s *UserService) UpdateProfile(ctx context.Context, callerID, id int, update types.UserUpdate) (types.User, error) {
	if callerID != id {
		return types.User{}, ErrForbidden
	}
	update.Role = nil
	return s.update(ctx, callerID, id, update)
}

// UpdateAny changes username, email or role of any account.
func (s *UserService) UpdateAny(ctx context.Context, callerID, id int, update types.UserUpdate) (types.User, error) {
	return s.update(ctx, callerID, id, update)
}

func (s *UserService) update(ctx context.Context, callerID, id int, update types.UserUpdate) (types.User, error) {
	update = normalizeUpdate(update)
	if update.Empty() {
		return types.User{}, ErrNoFieldsToUpdate
	}

	user, err := s.repo.Update(ctx, id, update)
	switch {
	case errors.Is(err, store.ErrRoleNotFound):
		return types.User{}, ErrUnknownRole
	case errors.Is(err, store.ErrConflict):
		return types.User{}, ErrUserExists
	case err != nil:
		return types.User{}, err
	}

	publish(ctx, s.events, types.Event{
		Type:       types.EventUserUpdated,
		ActorID:    callerID,
		ResourceID: user.ID,
	})
	return user, nil
}

// DeleteSelf removes the caller's own account and everything it owns.
func (s *UserService) DeleteSelf(ctx context.Context, callerID, id int) error {
	if callerID != id {
		return ErrForbidden
	}
	return s.delete(ctx, callerID, id)
}

// DeleteAny removes any account and everything it owns.
func (s *UserService) DeleteAny(ctx context.Context, callerID, id int) error {
	return s.delete(ctx, callerID, id)
}

func (s *UserService) delete(ctx context.Context, callerID, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	publish(ctx, s.events, types.Event{
		Type:       types.EventUserDeleted,
		ActorID:    callerID,
		ResourceID: id,
	})
	return nil
}

// normalizeUpdate trims fields and drops the ones left blank.
func normalizeUpdate(update types.UserUpdate) types.UserUpdate {
	trim := func(value *string) *string {
		if value == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" {
			return nil
		}
		return &trimmed
	}
	return types.UserUpdate{
		Username: trim(update.Username),
		Email:    trim(update.Email),
		Role:     trim(update.Role),
	}
}

func identityOf(user types.User) auth.Identity {
	return auth.Identity{ID: user.ID, Username: user.Username, Role: user.Role}
}
