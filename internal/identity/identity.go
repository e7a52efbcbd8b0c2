package identity

import (
	"net/http"

	"github.com/google/uuid"
)

const cookieName = "player_uid"

// FromRequest returns the caller's anonymous identity, minting and setting
// a cookie when none exists yet. The second result reports whether this is
// a new session.
func FromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, false
	}
	uid := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    uid,
		Path:     "/",
		HttpOnly: true,
	})
	return uid, true
}
