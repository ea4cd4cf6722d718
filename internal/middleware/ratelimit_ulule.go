package middleware

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/kevinmaint/maint-api/internal/request"
)

const defaultRatelimitRate = "120-M"

// RateLimit returns middleware that uses ulule/limiter keyed on request.ClientIP.
// Counters live in Redis when a client is given so every API replica shares
// them; a nil client keeps them in process memory.
func RateLimit(redisClient *redis.Client, rateStr string) (func(http.Handler) http.Handler, error) {
	if rateStr == "" {
		rateStr = defaultRatelimitRate
	}
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate limit %q: %w", rateStr, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "kevin_ratelimit"})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}
	} else {
		store = memorystore.NewStore()
	}

	instance := limiter.New(store, rate)
	keyGetter := func(r *http.Request) string {
		return request.ClientIP(r)
	}
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(keyGetter),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "Rate limit exceeded, retry after the X-RateLimit-Reset time")
		}),
		// A store outage must not take the API down with it
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			respondError(w, r, http.StatusServiceUnavailable, "Rate limiter unavailable")
		}),
	)
	return mw.Handler, nil
}
