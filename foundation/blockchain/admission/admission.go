// Package admission decides whether a submitter is allowed to hand work to
// the node. Every identity is held to a sliding window rate limit and is
// banned for a period after repeatedly submitting invalid data.
package admission

import (
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache/v2"
	"github.com/cockroachdb/errors"
	"github.com/paulbellamy/ratecounter"
	"go.uber.org/atomic"
)

// Set of error variables returned when a submission is refused.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrBanned      = errors.New("banned")
)

// Default values for the configuration.
const (
	DefaultRateLimit        = 5
	DefaultWindow           = time.Second
	DefaultFailureThreshold = 3
	DefaultBanDuration      = 30 * time.Minute
)

// Config represents the configuration required to construct a Control.
type Config struct {
	RateLimit        int
	Window           time.Duration
	FailureThreshold int
	BanDuration      time.Duration
	Now              func() time.Time
	EvHandler        func(v string, args ...any)
}

// Status represents what is known about an identity.
type Status struct {
	Identity       string    `json:"identity"`
	Banned         bool      `json:"banned"`
	UnbanAt        *time.Time `json:"unban_at,omitempty"`
	FailedAttempts int       `json:"failed_attempts"`
	RecentRequests int       `json:"recent_requests"`
}

// Stats represents node wide admission counters.
type Stats struct {
	Identities        int   `json:"identities"`
	AdmittedPerWindow int64 `json:"admitted_per_window"`
	RateLimited       int64 `json:"rate_limited"`
	BannedRejections  int64 `json:"banned_rejections"`
	Bans              int64 `json:"bans"`
}

// =============================================================================

// Control applies the rate limit and blacklist rules to identities.
type Control struct {
	window      time.Duration
	limit       *atomic.Int64
	threshold   int
	banDuration time.Duration
	now         func() time.Time
	evHandler   func(v string, args ...any)

	mu      sync.Mutex
	records *ttlcache.Cache

	admitted         *ratecounter.RateCounter
	rateLimited      *atomic.Int64
	bannedRejections *atomic.Int64
	bans             *atomic.Int64
}

// New constructs a Control. Zero values in the configuration are replaced
// by the defaults.
func New(cfg Config) (*Control, error) {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.BanDuration <= 0 {
		cfg.BanDuration = DefaultBanDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(string, ...any) {}
	}

	// Records idle for longer than a ban plus a window hold nothing that
	// affects a decision, so they are dropped by the cache.
	records := ttlcache.NewCache()
	records.SetLoaderFunction(func(_ string) (interface{}, time.Duration, error) {
		return &record{}, ttlcache.ItemExpireWithGlobalTTL, nil
	})
	if err := records.SetTTL(cfg.BanDuration + cfg.Window); err != nil {
		return nil, errors.WithStack(err)
	}

	c := Control{
		window:           cfg.Window,
		limit:            atomic.NewInt64(int64(cfg.RateLimit)),
		threshold:        cfg.FailureThreshold,
		banDuration:      cfg.BanDuration,
		now:              cfg.Now,
		evHandler:        cfg.EvHandler,
		records:          records,
		admitted:         ratecounter.NewRateCounter(cfg.Window),
		rateLimited:      atomic.NewInt64(0),
		bannedRejections: atomic.NewInt64(0),
		bans:             atomic.NewInt64(0),
	}

	return &c, nil
}

// Admit decides whether the identity may submit now. A banned identity is
// refused without touching its rate window. Otherwise the submission is
// counted against the window, or refused if the window is full.
func (c *Control) Admit(identity string) error {
	rec, err := c.record(identity)
	if err != nil {
		return err
	}

	now := c.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.banned(now) {
		c.bannedRejections.Inc()
		c.evHandler("admission: Admit: identity[%s]: BANNED: until[%s]", identity, rec.unbanAt.Format(time.RFC3339))
		return errors.Wrapf(ErrBanned, "identity %s until %s", identity, rec.unbanAt.Format(time.RFC3339))
	}

	limit := int(c.limit.Load())
	if !rec.allow(now, c.window, limit) {
		c.rateLimited.Inc()
		c.evHandler("admission: Admit: identity[%s]: RATE LIMITED: limit[%d per %s]", identity, limit, c.window)
		return errors.Wrapf(ErrRateLimited, "identity %s exceeded %d per %s", identity, limit, c.window)
	}

	c.admitted.Incr(1)

	return nil
}

// SetLimit changes the number of submissions allowed per window.
func (c *Control) SetLimit(limit int) {
	c.limit.Store(int64(limit))
}

// Status returns what is known about the identity.
func (c *Control) Status(identity string) (Status, error) {
	rec, err := c.record(identity)
	if err != nil {
		return Status{}, err
	}

	now := c.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.prune(now, c.window)

	st := Status{
		Identity:       identity,
		Banned:         rec.banned(now),
		FailedAttempts: rec.failedAttempts,
		RecentRequests: len(rec.window),
	}
	if st.Banned {
		unbanAt := rec.unbanAt
		st.UnbanAt = &unbanAt
	}

	return st, nil
}

// Stats returns the node wide admission counters.
func (c *Control) Stats() Stats {
	return Stats{
		Identities:        c.records.Count(),
		AdmittedPerWindow: c.admitted.Rate(),
		RateLimited:       c.rateLimited.Load(),
		BannedRejections:  c.bannedRejections.Load(),
		Bans:              c.bans.Load(),
	}
}

// Close stops the cache from expiring records.
func (c *Control) Close() {
	if err := c.records.Close(); err != nil {
		c.evHandler("admission: Close: ERROR: %s", err)
	}
}

// record returns the record for the identity, creating it on first use.
func (c *Control) record(identity string) (*record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.records.Get(identity)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return v.(*record), nil
}
