package reqgate

import (
	"net/http"
	"strings"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
	headerCFConnecting = "CF-Connecting-IP"

	// userAgentKeyLength bounds the user-agent fragment of a client key so
	// hostile clients cannot inflate store memory with arbitrary headers.
	userAgentKeyLength = 100

	unknownPart = "unknown"
)

// ClientKeyFromHeaders composes the default bucketing key from proxy
// headers: the first X-Forwarded-For entry, else X-Real-IP, else
// CF-Connecting-IP, else "unknown", joined with the first 100 characters
// of the user agent. It never fails and touches nothing but headers.
//
// The key is a fingerprinting heuristic, not an identity: clients behind
// the same proxy with the same browser share a bucket.
func ClientKeyFromHeaders(h http.Header) string {
	ip := unknownPart
	if xff := h.Get(headerForwardedFor); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if first = strings.TrimSpace(first); first != "" {
			ip = first
		}
	} else if real := h.Get(headerRealIP); real != "" {
		ip = real
	} else if cf := h.Get(headerCFConnecting); cf != "" {
		ip = cf
	}

	ua := h.Get("User-Agent")
	if ua == "" {
		ua = unknownPart
	}
	if len(ua) > userAgentKeyLength {
		ua = ua[:userAgentKeyLength]
	}

	return ip + ":" + ua
}

type headerKeyResolver struct{}

func (headerKeyResolver) ClientKey(r *http.Request) string {
	return ClientKeyFromHeaders(r.Header)
}

// DefaultKeyResolver returns the resolver backing [ClientKeyFromHeaders].
// It is used for every policy that has no per-policy override.
func DefaultKeyResolver() KeyResolver {
	return headerKeyResolver{}
}
