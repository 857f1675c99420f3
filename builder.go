package reqgate

import (
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reqgate/reqgate/csrf"
	"github.com/reqgate/reqgate/internal/window"
	"golang.org/x/time/rate"
)

// Builder assembles a [Gate]. Construction is allocation-only: no I/O
// happens until the gate serves traffic.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	clock  func() time.Time
	rand   io.Reader
	keys   KeyResolver

	policyKeys       map[PolicyClass]KeyResolver
	policyResponders map[PolicyClass]RejectionResponder
	eventSink        EventSink

	built bool
}

// New creates a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config:           DefaultConfig(),
		policyKeys:       make(map[PolicyClass]KeyResolver),
		policyResponders: make(map[PolicyClass]RejectionResponder),
	}
}

// WithConfig replaces the entire config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis switches the gate onto a shared Redis-backed window store so
// several processes enforce one quota. Without it the gate uses the
// in-process store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithClock injects the time source for window accounting and sweeps.
// Tests use a fake clock; production keeps the default time.Now.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithRand overrides the CSPRNG used for CSRF token issuance. Only tests
// should supply anything but the default crypto/rand reader.
func (b *Builder) WithRand(r io.Reader) *Builder {
	b.rand = r
	return b
}

// WithKeyResolver replaces the default client-key derivation for every
// policy that has no per-policy override.
func (b *Builder) WithKeyResolver(res KeyResolver) *Builder {
	b.keys = res
	return b
}

// WithPolicyKeyResolver overrides key derivation for one policy class,
// e.g. keying the auth tier by submitted account identifier instead of
// client fingerprint.
func (b *Builder) WithPolicyKeyResolver(class PolicyClass, res KeyResolver) *Builder {
	b.policyKeys[class] = res
	return b
}

// WithPolicyResponder overrides the rate-limit rejection rendering for
// one policy class.
func (b *Builder) WithPolicyResponder(class PolicyClass, responder RejectionResponder) *Builder {
	b.policyResponders[class] = responder
	return b
}

// WithEventSink sets the sink that receives rejection events. Delivery
// happens off the request path; enable it via [EventsConfig].
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithMetricsEnabled toggles the gate's counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the config and assembles the gate. A builder can build
// at most once.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	keys := b.keys
	if keys == nil {
		keys = DefaultKeyResolver()
	}

	// -------- WINDOW STORE --------
	var store window.Store
	var memory *window.MemoryStore
	if b.redis != nil {
		store = window.NewRedisStore(b.redis, cfg.Store.RedisPrefix, window.WithRedisClock(clock))
	} else {
		memory = window.NewMemoryStore(window.WithClock(clock))
		store = memory
	}

	// -------- CSRF MANAGER --------
	manager := csrf.NewManager(csrf.Config{
		CookieName:        cfg.CSRF.CookieName,
		HeaderName:        cfg.CSRF.HeaderName,
		FormField:         cfg.CSRF.FormField,
		Secure:            cfg.CSRF.Secure,
		MaxAge:            cfg.CSRF.CookieMaxAge,
		AllowFormFallback: cfg.CSRF.AllowFormFallback,
		Rand:              b.rand,
	})

	// -------- POLICY TABLE --------
	policies := buildPolicies(cfg, keys)
	for class, res := range b.policyKeys {
		if pol, ok := policies[class]; ok {
			pol.keys = res
		}
	}
	for class, responder := range b.policyResponders {
		if pol, ok := policies[class]; ok {
			pol.responder = responder
		}
	}

	var throttle *rate.Limiter
	if cfg.Throttle.Enabled {
		throttle = rate.NewLimiter(rate.Limit(cfg.Throttle.RPS), cfg.Throttle.Burst)
	}

	b.built = true

	return &Gate{
		config:   cfg,
		store:    store,
		memory:   memory,
		csrf:     manager,
		policies: policies,
		keys:     keys,
		throttle: throttle,
		metrics:  NewMetrics(cfg.Metrics),
		events:   newEventDispatcher(cfg.Events, b.eventSink),
		clock:    clock,
	}, nil
}
