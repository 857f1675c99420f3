package reqgate

import (
	"errors"
	"strings"
	"time"
)

// Config carries every tunable of the gate. Instances are intended to be
// configured during initialization and then treated as immutable; the
// builder clones the config before Build so later mutation of the
// caller's copy has no effect.
type Config struct {
	CSRF     CSRFConfig
	Routing  RoutingConfig
	Limits   LimitsConfig
	Throttle ThrottleConfig
	Store    StoreConfig
	Metrics  MetricsConfig
	Events   EventsConfig
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig controls double-submit-cookie verification for unsafe
// methods.
type CSRFConfig struct {
	CookieName string
	HeaderName string
	FormField  string

	// Secure marks the token cookie Secure. Leave false only for local
	// plain-HTTP development.
	Secure bool

	// CookieMaxAge is the token cookie lifetime. Default 24h.
	CookieMaxAge time.Duration

	// AllowFormFallback accepts the token from a form field when the
	// header is absent and the request body is form-encoded.
	AllowFormFallback bool

	// ExemptPaths lists exact request paths that skip CSRF verification
	// (e.g. webhook receivers that authenticate by signature). Empty by
	// default.
	ExemptPaths []string
}

/*
====================================
ROUTING CONFIG
====================================
*/

// RoutingConfig maps method+path onto a policy class. Rules are evaluated
// in a fixed order, first match wins: auth prefix, sensitive segment,
// search segment, unsafe method, safe read, none.
type RoutingConfig struct {
	// AuthPathPrefix routes authentication endpoints to ClassAuth.
	AuthPathPrefix string

	// SensitiveSegments are path segments that route to ClassSensitive.
	SensitiveSegments []string

	// SearchSegment is the path segment that routes to ClassSearch.
	SearchSegment string

	// UnsafeMethods are the state-changing methods subject to CSRF
	// verification and the write tier.
	UnsafeMethods []string

	// SafeReadMethod is the method routed to ClassRead when no earlier
	// rule matched.
	SafeReadMethod string
}

/*
====================================
LIMITS CONFIG
====================================
*/

// PolicyConfig is one limiter tier: a request budget over a sliding
// window. Constructed once at process start, never mutated afterwards.
type PolicyConfig struct {
	MaxRequests int
	Window      time.Duration

	// Disabled removes the tier from routing entirely.
	Disabled bool
}

// LimitsConfig is the fixed table of named policies.
type LimitsConfig struct {
	Auth      PolicyConfig
	Write     PolicyConfig
	Read      PolicyConfig
	Sensitive PolicyConfig
	Search    PolicyConfig
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig is an optional gate-wide token-bucket throttle applied
// before per-client policy evaluation. Off by default; it guards total
// process throughput, not individual clients.
type ThrottleConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the window store shared by all policies.
type StoreConfig struct {
	// SweepInterval is how often the in-process store evicts stale
	// records. Default one minute.
	SweepInterval time.Duration

	// RedisPrefix namespaces window keys when a Redis client is supplied
	// to the builder.
	RedisPrefix string

	// FailOpen admits requests when a shared store call fails, counting
	// the failure in metrics instead of rejecting traffic. Default true.
	// The in-process store never fails.
	FailOpen bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles the gate's internal counters.
type MetricsConfig struct {
	Enabled bool

	// EnableLatencyHistogram records Check latency buckets in addition
	// to counters.
	EnableLatencyHistogram bool
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig controls asynchronous delivery of rejection events to a
// sink supplied via [Builder.WithEventSink].
type EventsConfig struct {
	Enabled bool

	// BufferSize is the dispatch queue depth. Default 256.
	BufferSize int

	// DropIfFull drops events instead of blocking Emit when the queue
	// is full. Default true; blocking delivery is only for sinks that
	// must not lose events.
	DropIfFull bool
}

// DefaultConfig returns the baseline configuration: the five limiter
// tiers, CSRF verification on unsafe methods, metrics enabled, global
// throttle off.
func DefaultConfig() Config {
	return Config{
		CSRF: CSRFConfig{
			CookieName:        "csrf_token",
			HeaderName:        "X-CSRF-Token",
			FormField:         "csrf_token",
			Secure:            true,
			CookieMaxAge:      24 * time.Hour,
			AllowFormFallback: true,
		},
		Routing: RoutingConfig{
			AuthPathPrefix:    "/api/auth",
			SensitiveSegments: []string{"members", "invites", "delete"},
			SearchSegment:     "search",
			UnsafeMethods:     []string{"POST", "PUT", "PATCH", "DELETE"},
			SafeReadMethod:    "GET",
		},
		Limits: LimitsConfig{
			Auth:      PolicyConfig{MaxRequests: 5, Window: 15 * time.Minute},
			Write:     PolicyConfig{MaxRequests: 30, Window: time.Minute},
			Read:      PolicyConfig{MaxRequests: 100, Window: time.Minute},
			Sensitive: PolicyConfig{MaxRequests: 10, Window: time.Hour},
			Search:    PolicyConfig{MaxRequests: 50, Window: time.Minute},
		},
		Store: StoreConfig{
			SweepInterval: time.Minute,
			RedisPrefix:   "rg",
			FailOpen:      true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Events: EventsConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// PresetStrict tightens every tier for abuse-heavy deployments and turns
// the global throttle on.
func PresetStrict() Config {
	cfg := DefaultConfig()
	cfg.Limits.Auth = PolicyConfig{MaxRequests: 3, Window: 15 * time.Minute}
	cfg.Limits.Write = PolicyConfig{MaxRequests: 15, Window: time.Minute}
	cfg.Limits.Read = PolicyConfig{MaxRequests: 60, Window: time.Minute}
	cfg.Limits.Sensitive = PolicyConfig{MaxRequests: 5, Window: time.Hour}
	cfg.Limits.Search = PolicyConfig{MaxRequests: 20, Window: time.Minute}
	cfg.Throttle = ThrottleConfig{Enabled: true, RPS: 500, Burst: 1000}
	cfg.Metrics.EnableLatencyHistogram = true
	return cfg
}

// PresetRelaxed widens the tiers for internal or trusted-network
// deployments and disables the CSRF Secure flag for plain-HTTP setups.
func PresetRelaxed() Config {
	cfg := DefaultConfig()
	cfg.Limits.Auth = PolicyConfig{MaxRequests: 20, Window: 15 * time.Minute}
	cfg.Limits.Write = PolicyConfig{MaxRequests: 120, Window: time.Minute}
	cfg.Limits.Read = PolicyConfig{MaxRequests: 600, Window: time.Minute}
	cfg.Limits.Sensitive = PolicyConfig{MaxRequests: 60, Window: time.Hour}
	cfg.Limits.Search = PolicyConfig{MaxRequests: 300, Window: time.Minute}
	cfg.CSRF.Secure = false
	return cfg
}

// Validate rejects configurations the gate cannot enforce. It is called
// by [Builder.Build]; direct use is only needed when configs are
// assembled from external input.
func (c Config) Validate() error {
	if c.CSRF.CookieName == "" {
		return errors.New("csrf cookie name required")
	}
	if c.CSRF.HeaderName == "" {
		return errors.New("csrf header name required")
	}
	if c.CSRF.CookieMaxAge <= 0 {
		return errors.New("csrf cookie max age must be positive")
	}

	for _, p := range []struct {
		name string
		cfg  PolicyConfig
	}{
		{"auth", c.Limits.Auth},
		{"write", c.Limits.Write},
		{"read", c.Limits.Read},
		{"sensitive", c.Limits.Sensitive},
		{"search", c.Limits.Search},
	} {
		if p.cfg.Disabled {
			continue
		}
		if p.cfg.MaxRequests <= 0 {
			return errors.New(p.name + " policy max requests must be positive")
		}
		if p.cfg.Window <= 0 {
			return errors.New(p.name + " policy window must be positive")
		}
	}

	if c.Throttle.Enabled {
		if c.Throttle.RPS <= 0 {
			return errors.New("throttle rps must be positive")
		}
		if c.Throttle.Burst <= 0 {
			return errors.New("throttle burst must be positive")
		}
	}

	if c.Store.SweepInterval <= 0 {
		return errors.New("store sweep interval must be positive")
	}

	if c.Events.Enabled && c.Events.BufferSize < 0 {
		return errors.New("events buffer size must not be negative")
	}

	for _, m := range c.Routing.UnsafeMethods {
		if strings.TrimSpace(m) == "" {
			return errors.New("unsafe method entries must be non-empty")
		}
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.CSRF.ExemptPaths = append([]string(nil), cfg.CSRF.ExemptPaths...)
	out.Routing.SensitiveSegments = append([]string(nil), cfg.Routing.SensitiveSegments...)
	out.Routing.UnsafeMethods = append([]string(nil), cfg.Routing.UnsafeMethods...)
	return out
}
