package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

var windowClock = time.Now

// RedisRateLimitMiddleware provides a coarse fixed-window limiter shared by
// every replica. Each window allows floor(rps*window)+burst requests per key.
func RedisRateLimitMiddleware(client *redis.Client, prefix string, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	windowSeconds := int64(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	allowedPerWindow := int64(rps*float64(windowSeconds)) + int64(burst)
	return func(c *gin.Context) {
		bucket := windowClock().Unix() / windowSeconds
		redisKey := fmt.Sprintf("%srl:%s:%d", prefix, limitKey(c), bucket)

		ctx := c.Request.Context()
		var incr *redis.IntCmd
		_, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.Incr(ctx, redisKey)
			p.Expire(ctx, redisKey, time.Duration(windowSeconds+1)*time.Second)
			return nil
		})
		if err != nil {
			logger.Errorw("rate limit check failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			return
		}
		if incr.Val() > allowedPerWindow {
			rejectRateLimited(c, "redis", strconv.FormatInt(windowSeconds, 10))
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
