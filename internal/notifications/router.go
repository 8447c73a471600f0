package notifications

import (
	"github.com/gin-gonic/gin"

	"pixelevents/internal/shared/middleware"
)

// SetupNotificationRoutes configures inbox, broadcast and audit routes
func SetupNotificationRoutes(rg *gin.RouterGroup, controller Controller) {
	notifications := rg.Group("/notifications")
	{
		inbox := notifications.Group("")
		inbox.Use(middleware.EntrantIdentity())
		{
			inbox.GET("", controller.ListInbox)
			inbox.PATCH("/:id/read", controller.MarkRead)
		}

		organizer := notifications.Group("/broadcast")
		organizer.Use(middleware.RequireOrganizer())
		{
			organizer.POST("/:event_id", controller.Broadcast)
		}
	}

	admin := rg.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/notifications/logs", controller.ListAuditLog)
	}
}
