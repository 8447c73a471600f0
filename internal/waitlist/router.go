package waitlist

import (
	"github.com/gin-gonic/gin"

	"pixelevents/internal/shared/middleware"
)

// SetupWaitlistRoutes configures all waitlist routes
func SetupWaitlistRoutes(rg *gin.RouterGroup, controller Controller) {
	waitlists := rg.Group("/waitlists")
	{
		// Public reads
		waitlists.GET("/:event_id/size", controller.GetSize)
		waitlists.GET("/:event_id/members/:entrant_id", controller.GetMembership)

		// Entrant operations
		entrant := waitlists.Group("")
		entrant.Use(middleware.EntrantIdentity())
		{
			entrant.POST("/:event_id/join", controller.JoinWaitlist)
			entrant.DELETE("/:event_id/join", controller.LeaveWaitlist)
			entrant.POST("/:event_id/respond", controller.RespondToInvitation)
		}

		// Organizer operations
		organizer := waitlists.Group("")
		organizer.Use(middleware.RequireOrganizer())
		{
			organizer.POST("", controller.CreateWaitlist)
			organizer.GET("/:event_id", controller.GetWaitlist)
			organizer.DELETE("/:event_id", controller.DeleteWaitlist)
			organizer.POST("/:event_id/close", controller.CloseWaitlist)
			organizer.POST("/:event_id/reopen", controller.ReopenWaitlist)
		}
	}
}
