package middlewares

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"codemate/codemate/utils/logging"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Counter is the slice of the redis client the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RateLimit allows at most qps requests per second per client IP, counted in
// redis with INCR and a one second EXPIRE. When redis is unavailable requests
// pass and the failure is logged; a counter whose EXPIRE failed is deleted.
func RateLimit(counter Counter, qps int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rate_limit:" + clientIP(r)
			ctx := r.Context()

			count, err := counter.Incr(ctx, key).Result()
			if err != nil {
				logging.ErrorLogger.Error("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := counter.Expire(ctx, key, time.Second).Err(); err != nil {
					// A counter without a TTL would block this client for good.
					logging.ErrorLogger.Error("rate limiter expire failed", zap.String("key", key), zap.Error(err))
					if err := counter.Del(ctx, key).Err(); err != nil {
						logging.ErrorLogger.Error("rate limiter reset failed", zap.String("key", key), zap.Error(err))
					}
					next.ServeHTTP(w, r)
					return
				}
			}

			if count > int64(qps) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error":      "Too many requests to the assistant, slow down.",
					"details":    "client exceeded " + strconv.Itoa(qps) + " requests per second",
					"timestamp":  time.Now().UTC().Format(time.RFC3339),
					"suggestion": "Wait a second and resend the message.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RemoteAddr has already been rewritten by chi's RealIP middleware when the
// relay sits behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
