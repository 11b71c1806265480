package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/survey-intake/model"
)

type Users struct {
	db  *sql.DB
	now func() time.Time
}

func NewUsers(db *sql.DB) *Users {
	return &Users{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateUser stores a new account with a bcrypt hash of password.
func (st *Users) CreateUser(ctx context.Context, username, email, password, role string) (*model.User, error) {
	if role != model.RoleAdmin && role != model.RoleUser {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := model.User{Username: username, Email: email, Role: role, IsActive: true, CreatedAt: st.now()}
	err = st.db.QueryRowContext(ctx, `
		INSERT INTO user (username, email, password_hash, role, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		RETURNING id`,
		u.Username, u.Email, hash, u.Role, u.CreatedAt,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("user %q: %w", username, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// Authenticate checks the password of an active user.
func (st *Users) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	var hash []byte
	u, err := st.getUser(ctx, `WHERE username = ?`, username, &hash)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("user %q is disabled", username)
	}
	if err = bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, err
	}
	return u, nil
}

func (st *Users) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var hash []byte
	return st.getUser(ctx, `WHERE username = ?`, username, &hash)
}

func (st *Users) GetByID(ctx context.Context, id int) (*model.User, error) {
	var hash []byte
	return st.getUser(ctx, `WHERE id = ?`, id, &hash)
}

func (st *Users) getUser(ctx context.Context, where string, arg any, hash *[]byte) (*model.User, error) {
	u := model.User{}
	err := st.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, is_active, created_at, password_hash
		FROM user `+where,
		arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.IsActive, &u.CreatedAt, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// StoreRefreshToken records a refresh token pair issued to username.
func (st *Users) StoreRefreshToken(ctx context.Context, username, tokenID, refreshTokenID string, ttl time.Duration) error {
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO token (username, token_id, refresh_token_id, expiration)
		VALUES (?, ?, ?, ?)`,
		username,
		tokenID,
		refreshTokenID,
		st.now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken deletes the token pair; it fails when the pair is unknown or expired.
func (st *Users) ConsumeRefreshToken(ctx context.Context, username, tokenID, refreshTokenID string) error {
	var expiration time.Time
	err := st.db.QueryRowContext(ctx, `
		SELECT expiration FROM token
		WHERE username = ?
			AND token_id = ?
			AND refresh_token_id = ?`,
		username,
		tokenID,
		refreshTokenID,
	).Scan(&expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}

	_, err = st.db.ExecContext(ctx, `
		DELETE FROM token
		WHERE username = ?
			AND token_id = ?
			AND refresh_token_id = ?`,
		username,
		tokenID,
		refreshTokenID,
	)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}

	if expiration.Before(st.now()) {
		return errors.New("refresh token expired")
	}
	return nil
}
