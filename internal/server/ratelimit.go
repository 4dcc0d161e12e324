package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/codec"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// RateLimiter is a token bucket shared by every route it wraps.
type RateLimiter struct {
	limiter *rate.Limiter
	burst   int
}

// NewRateLimiter returns nil when rps is not positive; a nil limiter's
// middleware is a pass-through. A non-positive burst defaults to one
// second's worth of requests.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst), burst: burst}
}

// Middleware admits requests while tokens remain and rejects the rest with a
// rate_limit error in ingress's envelope. Every reply carries normalized
// x-ratelimit-* request headers.
func (rl *RateLimiter) Middleware(ingress domain.Ingress) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			res := rl.limiter.ReserveN(now, 1)
			delay := res.DelayFrom(now)

			h := w.Header()
			h.Set("x-ratelimit-limit-requests", itoa(rl.burst))
			h.Set("x-ratelimit-remaining-requests", itoa(int(math.Max(0, rl.limiter.TokensAt(now)))))

			if !res.OK() || delay > 0 {
				res.CancelAt(now)
				retry := int(math.Ceil(delay.Seconds()))
				if retry < 1 {
					retry = 1
				}
				h.Set("retry-after", itoa(retry))
				h.Set("x-ratelimit-reset-requests", (time.Duration(retry) * time.Second).String())
				apiErr := codec.WriteError(w, ingress, domain.ErrRateLimit("too many requests"))
				AddError(r.Context(), apiErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
