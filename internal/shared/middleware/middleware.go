package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pixelevents/internal/shared/utils/response"
	"pixelevents/pkg/logger"
)

const (
	// EntrantHeader carries the id of the entrant acting on the request
	EntrantHeader = "X-Entrant-ID"
	// RoleHeader carries the caller's role, set by the gateway in front of the service
	RoleHeader = "X-Role"
	// RequestIDHeader correlates a request across logs
	RequestIDHeader = "X-Request-ID"

	RoleEntrant   = "entrant"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"

	entrantIDKey = "entrant_id"
	roleKey      = "role"
	requestIDKey = "request_id"
)

// EntrantIdentity requires the entrant header and stores it in the context
func EntrantIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		entrantID := strings.TrimSpace(c.GetHeader(EntrantHeader))
		if entrantID == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, EntrantHeader+" header is required", nil, nil)
			c.Abort()
			return
		}

		c.Set(entrantIDKey, entrantID)
		c.Request = c.Request.WithContext(logger.ContextWithEntrantID(c.Request.Context(), entrantID))
		c.Next()
	}
}

// GetEntrantID returns the entrant stored by EntrantIdentity
func GetEntrantID(c *gin.Context) (string, bool) {
	value, exists := c.Get(entrantIDKey)
	if !exists {
		return "", false
	}
	entrantID, ok := value.(string)
	return entrantID, ok && entrantID != ""
}

// RequireRoles middleware checks if the caller has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(RoleHeader)))
		if role == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, RoleHeader+" header is required", nil, nil)
			c.Abort()
			return
		}

		for _, required := range requiredRoles {
			if role == required {
				c.Set(roleKey, role)
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequireOrganizer allows organizers and admins
func RequireOrganizer() gin.HandlerFunc {
	return RequireRoles(RoleOrganizer, RoleAdmin)
}

// RequireAdmin allows admins only
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(RoleAdmin)
}

// RequestID assigns every request an id, echoes it back and tags the
// request context so service logs carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(requestIDKey, requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}

// RequestLogger logs every request once it has been served
func RequestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l.LogHTTPRequest(c, time.Since(start))
		for _, err := range c.Errors {
			l.LogHTTPError(c, err.Err, c.Writer.Status())
		}
	}
}
