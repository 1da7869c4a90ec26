package handlers

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"linguachat/logging"
	"linguachat/models"
	"linguachat/services"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type ctxKey int

const identityKey ctxKey = iota

func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller attached by Authenticate, nil when the
// request carried no token.
func IdentityFrom(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(identityKey).(*models.Identity)
	return id
}

// Authenticate attaches the identity of a bearer token to the request
// context. Requests without a token pass through anonymously; a token that
// does not verify is rejected with 401.
func Authenticate(auth *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Authorization")
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := auth.ParseToken(token)
			if err != nil {
				respondWithAppError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequestLogger logs one line per request at info, or warn for 5xx.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				ev := log.Info()
				if ww.Status() >= http.StatusInternalServerError {
					ev = log.Warn()
				}
				ev.Str(logging.REQUESTID, middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("took", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller, keyed by username when the
// request is authenticated and by client IP otherwise.
type RateLimiter struct {
	mu            sync.Mutex
	m             map[string]*limiterEntry
	rps           rate.Limit
	burst         int
	ttl           time.Duration
	cleanupPeriod time.Duration
	startCleanup  sync.Once
	stopOnce      sync.Once
	stopCh        chan struct{}
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		m:             make(map[string]*limiterEntry),
		rps:           rate.Limit(rps),
		burst:         burst,
		ttl:           10 * time.Minute,
		cleanupPeriod: time.Minute,
		stopCh:        make(chan struct{}),
	}
}

func (p *RateLimiter) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = time.Now()
		return e.l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: time.Now()}
	return l
}

func (p *RateLimiter) Allow(key string) bool {
	return p.get(key).Allow()
}

// Shutdown stops the cleanup goroutine.
func (p *RateLimiter) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-p.ttl)
			p.mu.Lock()
			for k, e := range p.m {
				if e.lastSeen.Before(cutoff) {
					delete(p.m, k)
				}
			}
			p.mu.Unlock()
		case <-p.stopCh:
			return
		}
	}
}

// Middleware must run after Authenticate so authenticated callers get
// their own bucket.
func (p *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.Allow(limiterKey(r)) {
			w.Header().Set("Retry-After", "1")
			respondWithError(w, "RATE_LIMITED", "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limiterKey(r *http.Request) string {
	if id := IdentityFrom(r.Context()); id != nil {
		return "user:" + id.Username
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

