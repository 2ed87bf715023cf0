package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/pribylovaa/hackathon-site/internal/errors"
	logctx "github.com/pribylovaa/hackathon-site/pkg/log"
)

// idleLimiter — сколько неиспользуемый лимитер живёт в памяти.
const idleLimiter = 10 * time.Minute

// IPLimiter — token bucket на каждый клиентский IP.
type IPLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	sweep   time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewIPLimiter создаёт лимитер: rps запросов в секунду, всплеск burst.
// rps <= 0 отключает ограничение.
func NewIPLimiter(rps float64, burst int) *IPLimiter {
	if burst <= 0 {
		burst = 1
	}

	return &IPLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow резервирует попытку для ip. Если попытка не разрешена, возвращает
// false и время, через которое её стоит повторить.
func (l *IPLimiter) Allow(ip string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) > idleLimiter {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > idleLimiter {
				delete(l.buckets, k)
			}
		}
		l.sweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}

	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}

	return true, 0
}

// RateLimit отвечает 429 + Retry-After, когда IP исчерпал лимит.
func RateLimit(l *IPLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			ok, retry := l.Allow(ip)
			if !ok {
				secs := int(math.Ceil(retry.Seconds()))
				if secs < 1 {
					secs = 1
				}

				logctx.From(r.Context()).Warn("rate_limited",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
					slog.Int("retry_after", secs),
				)

				w.Header().Set("Retry-After", strconv.Itoa(secs))
				apierrors.WriteError(w, r, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP — адрес клиента из RemoteAddr (X-Forwarded-For уже разобран chi RealIP).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
