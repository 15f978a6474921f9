package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bbff-chat/apiserver/types"
)

const userColumns = `id, username, email, role, password_hash, last_login`

// UserRepository handles persistence for users and their role assignments.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	var lastLogin sql.NullTime
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&lastLogin,
	); err != nil {
		return types.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// ExistsByUsernameOrEmail reports whether either identifier is already taken.
func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateWithRole inserts the user and its role assignment in one
// transaction. user.Role names the role and must exist in the registry.
func (r *UserRepository) CreateWithRole(ctx context.Context, user types.User) (types.User, error) {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		roleID, err := lookupRole(ctx, tx, user.Role)
		if err != nil {
			return err
		}

		const insertUser = `
			INSERT INTO users (username, password_hash, email, role)
			VALUES ($1, $2, $3, $4)
			RETURNING id`
		if err := tx.QueryRowContext(
			ctx,
			insertUser,
			user.Username,
			user.PasswordHash,
			user.Email,
			user.Role,
		).Scan(&user.ID); err != nil {
			return mapWriteError(err)
		}

		const insertAssignment = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`
		if _, err := tx.ExecContext(ctx, insertAssignment, user.ID, roleID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// TouchLastLogin stamps the login time and returns it.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id int) (time.Time, error) {
	const query = `UPDATE users SET last_login = NOW() WHERE id = $1 RETURNING last_login`
	var lastLogin time.Time
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return lastLogin, nil
}

// Update applies the non-nil fields of update to the user with the given id.
// A role change also rewrites the user's role assignment.
func (r *UserRepository) Update(ctx context.Context, id int, update types.UserUpdate) (types.User, error) {
	if update.Empty() {
		return r.GetByID(ctx, id)
	}

	var updated types.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		roleID := 0
		if update.Role != nil {
			var err error
			roleID, err = lookupRole(ctx, tx, *update.Role)
			if err != nil {
				return err
			}
		}

		sets := make([]string, 0, 3)
		args := make([]any, 0, 4)
		if update.Username != nil {
			args = append(args, *update.Username)
			sets = append(sets, fmt.Sprintf("username = $%d", len(args)))
		}
		if update.Email != nil {
			args = append(args, *update.Email)
			sets = append(sets, fmt.Sprintf("email = $%d", len(args)))
		}
		if update.Role != nil {
			args = append(args, *update.Role)
			sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
		}
		args = append(args, id)

		query := fmt.Sprintf(
			`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
			strings.Join(sets, ", "),
			len(args),
			userColumns,
		)
		user, err := scanUser(tx.QueryRowContext(ctx, query, args...))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return mapWriteError(err)
		}

		if update.Role != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, id, roleID); err != nil {
				return err
			}
		}

		updated = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return updated, nil
}

// Delete removes the user together with everything that depends on it:
// messages authored by the user or posted in the user's chats, the user's
// chats, and role assignments. All steps share one transaction.
func (r *UserRepository) Delete(ctx context.Context, id int) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		const deleteMessages = `
			DELETE FROM messages
			WHERE user_id = $1
			   OR chat_id IN (SELECT id FROM chats WHERE user_id = $1)`
		if _, err := tx.ExecContext(ctx, deleteMessages, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
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
	})
}

func lookupRole(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	const query = `SELECT id FROM roles WHERE role_name = $1`
	var roleID int
	if err := tx.QueryRowContext(ctx, query, name).Scan(&roleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRoleNotFound
		}
		return 0, err
	}
	return roleID, nil
}
