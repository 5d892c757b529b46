package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clubsite/server/internal/api/problem"
	"github.com/clubsite/server/internal/config"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	TierAdmin  RateLimitTier = "admin"
	// TierLogin counts attempts per 15 minutes instead of per minute.
	TierLogin RateLimitTier = "login"
	// TierRegistration guards event sign-up so a form cannot be flooded.
	TierRegistration RateLimitTier = "registration"
)

const (
	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

var errRateLimited = errors.New("too many requests")

type rateLimitKey string

const rateLimitTierKey rateLimitKey = "rateLimitTier"

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

func tierFromContext(ctx context.Context) RateLimitTier {
	if tier, ok := ctx.Value(rateLimitTierKey).(RateLimitTier); ok {
		return tier
	}
	return TierPublic
}

// RateLimiter holds one token bucket per tier and client address.
type RateLimiter struct {
	store   *limiterStore
	proxies []*net.IPNet
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		store:   newLimiterStore(cfg),
		proxies: parseCIDRs(cfg.TrustedProxyCIDRs),
	}
}

// Tier limits the wrapped handler under tier, regardless of the context.
func (l *RateLimiter) Tier(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(w, r, tier) {
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRateLimitTier(r.Context(), tier)))
		})
	}
}

// Middleware limits by the tier found in the request context, defaulting
// to the public tier. Health probes are exempt.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(w, r, tierFromContext(r.Context())) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop ends the background cleanup.
func (l *RateLimiter) Stop() {
	l.store.Stop()
}

func (l *RateLimiter) allow(w http.ResponseWriter, r *http.Request, tier RateLimitTier) bool {
	limiter := l.store.limiter(tier, clientKey(r, l.proxies))
	if limiter == nil || limiter.Allow() {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(l.store.refill(tier).Seconds())))
	problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", errRateLimited, "")
	return false
}

type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limits   map[RateLimitTier]int
	stop     chan struct{}
	once     sync.Once
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	s := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		limits: map[RateLimitTier]int{
			TierPublic:       cfg.PublicPerMinute,
			TierAdmin:        cfg.AdminPerMinute,
			TierLogin:        cfg.LoginPer15Minutes,
			TierRegistration: cfg.RegistrationPerMinute,
		},
		stop: make(chan struct{}),
		now:  time.Now,
	}
	go s.cleanupLoop()
	return s
}

// refill is the time to earn back one token.
func (s *limiterStore) refill(tier RateLimitTier) time.Duration {
	limit := s.limits[tier]
	if limit <= 0 {
		return 0
	}
	window := time.Minute
	if tier == TierLogin {
		window = 15 * time.Minute
	}
	d := window / time.Duration(limit)
	if d < time.Second {
		d = time.Second
	}
	return d
}

// limiter returns nil when the tier is unlimited.
func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	limit := s.limits[tier]
	if limit <= 0 {
		return nil
	}
	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Every(s.refill(tier)), limit)
	s.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

func (s *limiterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-limiterTTL)
	for key, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func parseCIDRs(raw []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, c := range raw {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(c)); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

// clientKey is the caller's address. Forwarding headers are honoured only
// when the connection comes from a trusted proxy.
func clientKey(r *http.Request, proxies []*net.IPNet) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !trusted(remote, proxies) {
		return remote
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return remote
}

func trusted(ip string, proxies []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range proxies {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
