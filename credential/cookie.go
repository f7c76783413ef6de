package credential

import (
	"net/http"
	"time"
)

const (
	// SessionCookieName carries the signed session credential.
	SessionCookieName = "__Host-gate_session"
	// StateCookieName carries the short-lived OAuth state credential. It is
	// always distinct from the session cookie.
	StateCookieName = "__Host-gate_oauth_state"
)

// CookieOptions defines how credential cookies are issued. HttpOnly is
// forced on; there is no legitimate script access to a credential.
type CookieOptions struct {
	Path     string
	Secure   bool
	SameSite http.SameSite
	Domain   string // should usually be empty for __Host- cookies
}

func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// WriteCookie issues a credential cookie. maxAge is the outer cookie expiry
// hint; the server-side session expiry stays authoritative.
func WriteCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ReadCookie returns the named cookie's value, if present.
func ReadCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// ClearCookie removes a credential cookie via an explicit expiring
// response, used on logout and flow completion.
func ClearCookie(w http.ResponseWriter, name string, opts CookieOptions) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
