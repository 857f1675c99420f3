package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const (
	// DefaultCookieName is the cookie holding the server copy of the token.
	DefaultCookieName = "csrf_token"
	// DefaultHeaderName is the header carrying the client copy.
	DefaultHeaderName = "X-CSRF-Token"
	// DefaultFormField is the form-field fallback for the client copy.
	DefaultFormField = "csrf_token"
	// DefaultMaxAge is the cookie lifetime.
	DefaultMaxAge = 24 * time.Hour

	tokenSize = 32

	// EncodedLength is the length of every issued token: 32 random bytes
	// in unpadded base64url.
	EncodedLength = 43
)

// ErrTokenGeneration is returned when the CSPRNG fails. Issuance never
// degrades to a predictable or empty token; the failure must propagate.
var ErrTokenGeneration = errors.New("csrf token generation failed")

// Config carries the manager's tunables. Zero values fall back to the
// package defaults.
type Config struct {
	CookieName string
	HeaderName string
	FormField  string

	// Secure marks the cookie Secure; set it everywhere TLS terminates.
	Secure bool

	MaxAge time.Duration

	// AllowFormFallback accepts the token from FormField when the header
	// is absent and the body is form-encoded.
	AllowFormFallback bool

	// Rand overrides the entropy source. Defaults to crypto/rand.Reader;
	// only tests should supply anything else.
	Rand io.Reader
}

// Manager issues and verifies double-submit tokens.
type Manager struct {
	cookieName        string
	headerName        string
	formField         string
	secure            bool
	maxAge            time.Duration
	allowFormFallback bool
	rand              io.Reader
}

// NewManager creates a manager, applying package defaults for zero-valued
// config fields.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		cookieName:        cfg.CookieName,
		headerName:        cfg.HeaderName,
		formField:         cfg.FormField,
		secure:            cfg.Secure,
		maxAge:            cfg.MaxAge,
		allowFormFallback: cfg.AllowFormFallback,
		rand:              cfg.Rand,
	}
	if m.cookieName == "" {
		m.cookieName = DefaultCookieName
	}
	if m.headerName == "" {
		m.headerName = DefaultHeaderName
	}
	if m.formField == "" {
		m.formField = DefaultFormField
	}
	if m.maxAge <= 0 {
		m.maxAge = DefaultMaxAge
	}
	if m.rand == nil {
		m.rand = rand.Reader
	}
	return m
}

// Issue generates a fresh token, sets it as the HttpOnly SameSite=Strict
// cookie, and returns the token string for embedding in a page or API
// response.
func (m *Manager) Issue(w http.ResponseWriter) (string, error) {
	var buf [tokenSize]byte
	if _, err := io.ReadFull(m.rand, buf[:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	token := base64.RawURLEncoding.EncodeToString(buf[:])

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})

	return token, nil
}

// Current reads the cookie copy of the token without side effects.
func (m *Manager) Current(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Verify compares the cookie token with the client-supplied copy. It
// fails closed: absence of either side is false, and mismatch is false.
// The caller is responsible for invoking it only on state-changing
// methods; safe reads are exempt.
func (m *Manager) Verify(r *http.Request) bool {
	cookieToken, ok := m.Current(r)
	if !ok {
		return false
	}

	supplied := r.Header.Get(m.headerName)
	if supplied == "" && m.allowFormFallback && isFormRequest(r) {
		supplied = r.PostFormValue(m.formField)
	}
	if supplied == "" {
		return false
	}

	return Equal(cookieToken, supplied)
}

// Equal compares two tokens byte-for-byte in constant time. Unequal
// lengths short-circuit to false before the constant-time loop; token
// length is fixed and public, so the timing difference reveals nothing
// secret.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isFormRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" ||
		mediaType == "multipart/form-data"
}
