package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CreateUser inserts a new user with a bcrypt-hashed password, matching
// users.rs's create_user insert of (id, email, password) generalized to
// hash the password at rest instead of storing it plaintext.
func (s *Store) CreateUser(ctx context.Context, email, password string, isAdmin bool) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("catalog: hashing password: %w", err)
	}
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password, is_admin) VALUES (?, ?, ?, ?)`,
		id, email, string(hash), isAdmin)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("catalog: creating user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapScanErr(err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = ?`, email); err != nil {
		return nil, wrapScanErr(err)
	}
	return &u, nil
}

// ListUsers returns every user, matching get_users.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.SelectContext(ctx, &users, `SELECT * FROM users`); err != nil {
		return nil, fmt.Errorf("catalog: listing users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a user by email, matching delete_user.
func (s *Store) DeleteUser(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("catalog: deleting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// VerifyLogin checks email/password against the stored bcrypt hash,
// matching verify_login.
func (s *Store) VerifyLogin(ctx context.Context, email, password string) (*User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("catalog: invalid login")
	}
	return u, nil
}

// CreateClient issues a new API key scoped to userID, matching the
// client/secret model list_keys reports on.
func (s *Store) CreateClient(ctx context.Context, userID string) (*Client, error) {
	clientID := uuid.New().String()
	secret := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (client_id, user_id, secret) VALUES (?, ?, ?)`, clientID, userID, secret)
	if err != nil {
		return nil, fmt.Errorf("catalog: creating client: %w", err)
	}
	var c Client
	if err := s.db.GetContext(ctx, &c, `SELECT * FROM clients WHERE client_id = ?`, clientID); err != nil {
		return nil, wrapScanErr(err)
	}
	return &c, nil
}

// GetClientBySecret resolves the client whose secret matches token,
// matching validate_bearer's client lookup that runs before attempting
// JWT decode.
func (s *Store) GetClientBySecret(ctx context.Context, secret string) (*Client, error) {
	var c Client
	if err := s.db.GetContext(ctx, &c, `SELECT * FROM clients WHERE secret = ?`, secret); err != nil {
		return nil, wrapScanErr(err)
	}
	return &c, nil
}

// ListClients returns every issued client key, matching list_keys.
func (s *Store) ListClients(ctx context.Context) ([]Client, error) {
	var clients []Client
	if err := s.db.SelectContext(ctx, &clients, `SELECT * FROM clients`); err != nil {
		return nil, fmt.Errorf("catalog: listing clients: %w", err)
	}
	return clients, nil
}

// GrantScope records that userID holds actions (comma-joined
// pull/push/delete) against repositoryID, narrowing or widening any
// existing grant.
func (s *Store) GrantScope(ctx context.Context, userID string, repositoryID int64, actions string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repository_scopes (user_id, repository_id, actions) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, repository_id) DO UPDATE SET actions = excluded.actions`,
		userID, repositoryID, actions)
	if err != nil {
		return fmt.Errorf("catalog: granting scope: %w", err)
	}
	return nil
}

// ScopeActions returns the actions userID holds against repositoryID, or
// an empty string if no grant exists.
func (s *Store) ScopeActions(ctx context.Context, userID string, repositoryID int64) (string, error) {
	var actions string
	err := s.db.GetContext(ctx, &actions,
		`SELECT actions FROM repository_scopes WHERE user_id = ? AND repository_id = ?`, userID, repositoryID)
	if err != nil {
		if wrapScanErr(err) == ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("catalog: reading scope: %w", err)
	}
	return actions, nil
}
