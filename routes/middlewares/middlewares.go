package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/oauth"

	"github.com/mbolis/survey-intake/httpx"
	"github.com/mbolis/survey-intake/log"
	"github.com/mbolis/survey-intake/model"
)

type callerKey struct{}

func WithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the authenticated caller, or nil for anonymous requests.
func CallerFrom(ctx context.Context) *model.Caller {
	caller, _ := ctx.Value(callerKey{}).(*model.Caller)
	return caller
}

// Identity resolves the caller from an "Authorization: Bearer" header. Requests
// without one go through as anonymous; a token that fails verification is a 401.
// Tokens shaped like JWTs are checked against the identity provider when one is
// configured, everything else against the local bearer server.
func Identity(tokenSecret string, idp *httpx.IdentityProvider) func(http.Handler) http.Handler {
	authorize := oauth.Authorize(tokenSecret, nil)

	return func(next http.Handler) http.Handler {
		fromClaims := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(oauth.ClaimsContext).(map[string]string)
			caller, err := callerFromClaims(claims)
			if err != nil {
				httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "auth.claims")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
		local := authorize(fromClaims)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if idp != nil && strings.Count(token, ".") == 2 {
				caller, err := idp.Verify(r.Context(), token)
				if errors.Is(err, httpx.ErrInvalidIdentity) {
					log.Debug("auth.idp:", err)
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
					return
				}
				if err != nil {
					httpx.LogInternalError(w, "auth.idp", err)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
				return
			}

			local.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}

func callerFromClaims(claims map[string]string) (*model.Caller, error) {
	id, err := strconv.Atoi(claims[httpx.ClaimUserID])
	if err != nil || id <= 0 {
		return nil, errors.New("token has no user id")
	}
	return &model.Caller{
		ID:    id,
		Email: claims[httpx.ClaimEmail],
		Role:  claims[httpx.ClaimRoles],
	}, nil
}

// Admin checks for the 'admin' role of the caller.
func Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := CallerFrom(r.Context())
		if caller == nil {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "auth.required")
			return
		}

		isAdmin := false
		for _, role := range strings.Split(caller.Role, ",") {
			if strings.TrimSpace(role) == model.RoleAdmin {
				isAdmin = true
				break
			}
		}

		if !isAdmin {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "auth.admin")
			return
		}

		next.ServeHTTP(w, r)
	})
}
