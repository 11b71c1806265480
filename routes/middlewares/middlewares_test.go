package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbolis/survey-intake/httpx"
	"github.com/mbolis/survey-intake/model"
	"github.com/mbolis/survey-intake/store"
)

type userMap map[int]*model.User

func (m userMap) GetByID(_ context.Context, id int) (*model.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

type brokenUsers struct{}

func (brokenUsers) GetByID(context.Context, int) (*model.User, error) {
	return nil, errors.New("database is locked")
}

var idpUsers = userMap{
	42: {ID: 42, Username: "x", Email: "x@local", Role: model.RoleUser, IsActive: true},
	43: {ID: 43, Username: "gone", Email: "gone@local", Role: model.RoleUser, IsActive: false},
}

func signToken(t *testing.T, secret string, sub int, claims jwt.MapClaims) string {
	t.Helper()
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = strconv.Itoa(sub)
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = jwt.NewNumericDate(time.Now().Add(time.Minute))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func serveWithToken(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func echoCaller(t *testing.T, got **model.Caller) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestIdentityWithoutHeaderIsAnonymous(t *testing.T) {
	var caller *model.Caller
	h := Identity("secret", nil)(echoCaller(t, &caller))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, caller)
}

func TestIdentityFromProviderToken(t *testing.T) {
	idp := httpx.NewIdentityProvider("idp", idpUsers)

	var caller *model.Caller
	h := Identity("secret", idp)(echoCaller(t, &caller))

	rec := serveWithToken(h, signToken(t, "idp", 42, jwt.MapClaims{"email": "x@example.com", "role": "user,admin"}))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, &model.Caller{ID: 42, Email: "x@example.com", Role: "user,admin"}, caller)

	rec = serveWithToken(h, signToken(t, "idp", 42, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, &model.Caller{ID: 42, Email: "x@local", Role: model.RoleUser}, caller, "falls back to the local account")
}

func TestIdentityProviderRejects(t *testing.T) {
	idp := httpx.NewIdentityProvider("idp", idpUsers)

	tests := []struct {
		name  string
		token string
	}{
		{"unknown subject", signToken(t, "idp", 4242, nil)},
		{"disabled account", signToken(t, "idp", 43, nil)},
		{"wrong key", signToken(t, "other", 42, nil)},
		{"expired", signToken(t, "idp", 42, jwt.MapClaims{"exp": jwt.NewNumericDate(time.Now().Add(-time.Minute))})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var caller *model.Caller
			h := Identity("secret", idp)(echoCaller(t, &caller))

			rec := serveWithToken(h, tt.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, caller)
		})
	}
}

func TestIdentityProviderLookupFailure(t *testing.T) {
	var caller *model.Caller
	h := Identity("secret", httpx.NewIdentityProvider("idp", brokenUsers{}))(echoCaller(t, &caller))

	rec := serveWithToken(h, signToken(t, "idp", 42, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Nil(t, caller)
}

func TestIdentityProviderDisabled(t *testing.T) {
	var caller *model.Caller
	h := Identity("secret", nil)(echoCaller(t, &caller))

	rec := serveWithToken(h, signToken(t, "idp", 42, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, caller)
}

func TestAdmin(t *testing.T) {
	tests := []struct {
		name   string
		caller *model.Caller
		status int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"user", &model.Caller{ID: 1, Role: model.RoleUser}, http.StatusForbidden},
		{"admin", &model.Caller{ID: 1, Role: model.RoleAdmin}, http.StatusOK},
		{"admin among roles", &model.Caller{ID: 1, Role: "user, admin"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Admin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.caller != nil {
				req = req.WithContext(WithCaller(req.Context(), tt.caller))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
