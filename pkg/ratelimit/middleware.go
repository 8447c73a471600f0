package ratelimit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pixelevents/internal/shared/middleware"
	"pixelevents/internal/shared/utils/response"
	"pixelevents/pkg/logger"
)

// Middleware rejects requests over the budget of their route type. It must
// be registered on the engine so c.FullPath resolves to the route template.
func Middleware(rateLimiter *RateLimiter, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.GetDefault()
	}
	return func(c *gin.Context) {
		limitType := getRateLimitType(c.FullPath(), c.Request.Method)
		subject := subjectFor(c, limitType)

		result, err := rateLimiter.IsAllowed(c.Request.Context(), subject, limitType)
		if err != nil {
			// fail open while the limiter is unreachable
			log.Warn("Rate limit check failed", "error", err, "ip", subject.IP)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime, 10))

		if !result.Allowed {
			log.LogRateLimitExceeded(c.Request.Context(), subject.IP, c.FullPath())
			response.RespondJSON(c, "error", http.StatusTooManyRequests,
				"Rate limit exceeded", nil, map[string]interface{}{
					"limit":      result.Limit,
					"reset_time": result.ResetTime,
				})
			c.Abort()
			return
		}

		c.Next()
	}
}

// subjectFor charges entrant-facing routes to the entrant when the request
// names one. gin's ClientIP honours only the engine's trusted proxies.
func subjectFor(c *gin.Context, limitType RateLimitType) Subject {
	subject := Subject{IP: c.ClientIP()}
	switch limitType {
	case RateLimitTypeAdmission, RateLimitTypeInbox:
		subject.EntrantID = strings.TrimSpace(c.GetHeader(middleware.EntrantHeader))
	}
	return subject
}

// getRateLimitType maps a route template to its budget
func getRateLimitType(path string, method string) RateLimitType {
	switch {
	case strings.HasPrefix(path, "/health"),
		strings.HasPrefix(path, "/ping"),
		strings.HasPrefix(path, "/status"):
		return RateLimitTypeHealth

	case strings.Contains(path, "/admin/"),
		strings.Contains(path, "/lottery"),
		strings.Contains(path, "/notifications/broadcast"):
		return RateLimitTypeOrganizer

	case strings.HasSuffix(path, "/join"),
		strings.HasSuffix(path, "/respond"):
		return RateLimitTypeAdmission

	case strings.Contains(path, "/notifications"):
		return RateLimitTypeInbox

	case strings.Contains(path, "/waitlists") && method != http.MethodGet:
		return RateLimitTypeOrganizer

	default:
		return RateLimitTypeDefault
	}
}
