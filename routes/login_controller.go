package routes

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mbolis/survey-intake/app"
	"github.com/mbolis/survey-intake/httpx"
	"github.com/mbolis/survey-intake/log"
)

var reRefreshAuth = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

// Login exchanges Basic credentials for an access and refresh token pair.
func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}

		grant(app, w, r, "login."+user, url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
		})
	}
}

// Refresh exchanges an "Authorization: Refresh <token>" header for a new token pair.
func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		match := reRefreshAuth.FindStringSubmatch(r.Header.Get("authorization"))
		if len(match) == 0 {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		grant(app, w, r, "refresh", url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {strings.TrimSpace(match[1])},
		})
	}
}

// grant replays the form to the bearer server and forwards its answer.
func grant(app app.App, w http.ResponseWriter, r *http.Request, code string, form url.Values) {
	body := form.Encode()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/", strings.NewReader(body))
	if err != nil {
		httpx.LogInternalError(w, code+".new_request", err)
		return
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("content-length", strconv.Itoa(len(body)))
	req.RemoteAddr = r.RemoteAddr

	resp := httpx.NewResponseBuffer()
	app.UserCredentials(resp, req)

	if status := resp.Status(); status >= http.StatusBadRequest {
		log.Infof("%s: rejected (%d)", code, status)
	}
	if err = resp.Flush(w); err != nil {
		log.Error(code+".flush:", err)
	}
}
