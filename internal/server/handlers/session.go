package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hazem-soussi-HA/hazoom/internal/backend"
)

// SessionCookie carries the session id between requests.
const SessionCookie = "hazoom_session"

const sessionCookieMaxAge = 30 * 24 * 60 * 60

// resolveSession picks the session id from the payload, then the session_id
// query parameter, then the cookie. Otherwise a new id is minted and set as
// the cookie.
func resolveSession(w http.ResponseWriter, r *http.Request, fromPayload string) string {
	if id := strings.TrimSpace(fromPayload); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("session_id")); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// resolveUser returns the payload user, then the user_identifier query
// parameter, then the anonymous user.
func resolveUser(r *http.Request, fromPayload string) string {
	if u := strings.TrimSpace(fromPayload); u != "" {
		return u
	}
	if u := strings.TrimSpace(r.URL.Query().Get("user_identifier")); u != "" {
		return u
	}
	return backend.DefaultUser
}
