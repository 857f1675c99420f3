package csrf

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func requestWithTokens(cookieToken, headerToken string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/items", nil)
	if cookieToken != "" {
		r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: cookieToken})
	}
	if headerToken != "" {
		r.Header.Set(DefaultHeaderName, headerToken)
	}
	return r
}

func TestIssueSetsCookieAttributes(t *testing.T) {
	m := NewManager(Config{Secure: true})
	rec := httptest.NewRecorder()

	token, err := m.Issue(rec)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if len(token) != EncodedLength {
		t.Fatalf("token length = %d, want %d", len(token), EncodedLength)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}

	c := cookies[0]
	if c.Name != DefaultCookieName {
		t.Fatalf("cookie name = %q, want %q", c.Name, DefaultCookieName)
	}
	if c.Value != token {
		t.Fatal("cookie value must equal the returned token")
	}
	if !c.HttpOnly {
		t.Fatal("cookie must be HttpOnly")
	}
	if !c.Secure {
		t.Fatal("cookie must be Secure when configured")
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie SameSite = %v, want Strict", c.SameSite)
	}
	if c.Path != "/" {
		t.Fatalf("cookie path = %q, want /", c.Path)
	}
	if c.MaxAge != 86400 {
		t.Fatalf("cookie max age = %d, want 86400", c.MaxAge)
	}
}

func TestIssueNeverRepeats(t *testing.T) {
	m := NewManager(Config{})
	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		rec := httptest.NewRecorder()
		token, err := m.Issue(rec)
		if err != nil {
			t.Fatalf("issue %d failed: %v", i, err)
		}
		if len(token) != EncodedLength {
			t.Fatalf("issue %d: token length = %d, want %d", i, len(token), EncodedLength)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("issue %d produced a repeated token", i)
		}
		seen[token] = struct{}{}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestIssuePropagatesRNGFailure(t *testing.T) {
	m := NewManager(Config{Rand: failingReader{}})
	rec := httptest.NewRecorder()

	token, err := m.Issue(rec)
	if !errors.Is(err, ErrTokenGeneration) {
		t.Fatalf("err = %v, want ErrTokenGeneration", err)
	}
	if token != "" {
		t.Fatal("no token may be returned when the CSPRNG fails")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no cookie may be set when the CSPRNG fails")
	}
}

func TestVerifyTruthTable(t *testing.T) {
	m := NewManager(Config{})

	cases := []struct {
		name   string
		cookie string
		header string
		want   bool
	}{
		{"both present and equal", "abc123", "abc123", true},
		{"mismatch", "abc123", "abc124", false},
		{"header absent", "abc123", "", false},
		{"cookie absent", "", "abc123", false},
		{"both absent", "", "", false},
		{"length mismatch", "abc123", "abc1234", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.Verify(requestWithTokens(tc.cookie, tc.header)); got != tc.want {
				t.Fatalf("verify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVerifyFormFallback(t *testing.T) {
	m := NewManager(Config{AllowFormFallback: true})

	r := httptest.NewRequest(http.MethodPost, "/api/items",
		strings.NewReader("csrf_token=abc123&name=x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "abc123"})

	if !m.Verify(r) {
		t.Fatal("form field token should verify when fallback is enabled")
	}
}

func TestVerifyFormFallbackDisabled(t *testing.T) {
	m := NewManager(Config{})

	r := httptest.NewRequest(http.MethodPost, "/api/items",
		strings.NewReader("csrf_token=abc123"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "abc123"})

	if m.Verify(r) {
		t.Fatal("form field token must be ignored when fallback is disabled")
	}
}

func TestCurrentReadsCookieWithoutSideEffects(t *testing.T) {
	m := NewManager(Config{})

	if _, ok := m.Current(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Fatal("current should report absence without a cookie")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "tok"})
	got, ok := m.Current(r)
	if !ok || got != "tok" {
		t.Fatalf("current = %q/%v, want tok/true", got, ok)
	}
}

func TestEqualConstantTimeSemantics(t *testing.T) {
	if !Equal("abc123", "abc123") {
		t.Fatal("equal strings must compare true")
	}
	if Equal("abc123", "abc124") {
		t.Fatal("unequal strings must compare false")
	}
	if Equal("", "") != true {
		t.Fatal("two empty strings are equal")
	}
	if Equal("a", "") {
		t.Fatal("different lengths must compare false")
	}
}
