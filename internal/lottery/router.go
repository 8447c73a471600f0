package lottery

import (
	"github.com/gin-gonic/gin"

	"pixelevents/internal/shared/middleware"
)

// SetupLotteryRoutes configures the organizer draw routes
func SetupLotteryRoutes(rg *gin.RouterGroup, controller Controller) {
	lottery := rg.Group("/lottery")
	lottery.Use(middleware.RequireOrganizer())
	{
		lottery.GET("/jobs", controller.JobStatus)
		lottery.POST("/:event_id/draw", controller.Draw)
		lottery.POST("/:event_id/schedule", controller.ScheduleDraw)
		lottery.GET("/:event_id/schedule", controller.GetScheduledDraw)
		lottery.DELETE("/:event_id/schedule", controller.CancelScheduledDraw)
	}
}
