package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/oauth"

	"github.com/mbolis/survey-intake/config"
	"github.com/mbolis/survey-intake/store"
)

// Claims carried by tokens issued from /api/login.
const (
	ClaimUserID = "uid"
	ClaimEmail  = "email"
	ClaimRoles  = "roles"
)

const refreshTokenTTL = 8760 * time.Hour

type credentialsVerifier struct {
	users *store.Users
}

func CredentialsVerifier(users *store.Users) oauth.CredentialsVerifier {
	return &credentialsVerifier{users}
}

// NewBearerServer issues and refreshes access tokens for local accounts.
func NewBearerServer(users *store.Users, cfg config.Config) *oauth.BearerServer {
	return oauth.NewBearerServer(cfg.TokenSecret, cfg.TokenTTL, CredentialsVerifier(users), nil)
}

func (cs *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	_, err := cs.users.Authenticate(r.Context(), username, password)
	return err
}
func (cs *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cs.users.StoreRefreshToken(context.Background(), credential, tokenID, refreshTokenID, refreshTokenTTL)
}
func (cs *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	err := cs.users.ConsumeRefreshToken(context.Background(), credential, tokenID, refreshTokenID)
	if err != nil {
		return errors.New("could not refresh")
	}
	return nil
}
func (cs *credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	u, err := cs.users.GetByUsername(r.Context(), credential)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, errors.New("user is disabled")
	}
	return map[string]string{
		ClaimUserID: strconv.Itoa(u.ID),
		ClaimEmail:  u.Email,
		ClaimRoles:  u.Role,
	}, nil
}
func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}
func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("not supported")
}
