package httpx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/store"
)

// ErrInvalidIdentity marks tokens that must be answered with 401.
var ErrInvalidIdentity = errors.New("invalid identity token")

// UserFinder resolves identity provider subjects to local accounts.
type UserFinder interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
}

// IdentityProvider verifies tokens minted by the upstream identity provider.
type IdentityProvider struct {
	secret []byte
	users  UserFinder
}

// NewIdentityProvider returns nil when no secret is configured.
func NewIdentityProvider(secret string, users UserFinder) *IdentityProvider {
	if secret == "" {
		return nil
	}
	return &IdentityProvider{secret: []byte(secret), users: users}
}

type idpClaims struct {
	ObjectID          string   `json:"oid,omitempty"`
	Email             string   `json:"email,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Role              string   `json:"role,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verify checks the token signature and expiry and maps its claims to a caller.
// The user id comes from "oid", falling back to "sub", and must name an active
// local account. Email and role default to the account's own.
func (p *IdentityProvider) Verify(ctx context.Context, token string) (*model.Caller, error) {
	claims := &idpClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}

	subject := claims.ObjectID
	if subject == "" {
		subject = claims.Subject
	}
	id, err := strconv.Atoi(subject)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidIdentity, subject)
	}

	u, err := p.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no local account for subject %d", ErrInvalidIdentity, id)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve subject %d: %w", id, err)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: user %d is disabled", ErrInvalidIdentity, id)
	}

	caller := &model.Caller{ID: u.ID, Email: claims.Email, Role: claims.Role}
	if caller.Email == "" {
		caller.Email = claims.PreferredUsername
	}
	if caller.Email == "" {
		caller.Email = u.Email
	}
	if caller.Role == "" && len(claims.Roles) > 0 {
		caller.Role = strings.Join(claims.Roles, ",")
	}
	if caller.Role == "" {
		caller.Role = u.Role
	}
	return caller, nil
}
