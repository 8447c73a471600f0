package lottery

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pixelevents/internal/shared/utils/response"
)

type Controller interface {
	Draw(c *gin.Context)
	ScheduleDraw(c *gin.Context)
	GetScheduledDraw(c *gin.Context)
	CancelScheduledDraw(c *gin.Context)
	JobStatus(c *gin.Context)
}

type controller struct {
	service Service
	jobs    *JobProcessor
}

// NewController creates the lottery controller. jobs may be nil when the scheduler is not running.
func NewController(service Service, jobs *JobProcessor) Controller {
	return &controller{service: service, jobs: jobs}
}

func (ctrl *controller) Draw(c *gin.Context) {
	var req DrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	resp, err := ctrl.service.DrawAndNotify(c.Request.Context(), c.Param("event_id"), &req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Draw completed", resp, nil)
}

func (ctrl *controller) ScheduleDraw(c *gin.Context) {
	var req ScheduleDrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	schedule, err := ctrl.service.ScheduleDraw(c.Request.Context(), c.Param("event_id"), &req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Draw scheduled", schedule, nil)
}

func (ctrl *controller) GetScheduledDraw(c *gin.Context) {
	schedule, err := ctrl.service.GetScheduledDraw(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Scheduled draw retrieved", schedule, nil)
}

func (ctrl *controller) CancelScheduledDraw(c *gin.Context) {
	if err := ctrl.service.CancelScheduledDraw(c.Request.Context(), c.Param("event_id")); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Scheduled draw cancelled", nil, nil)
}

func (ctrl *controller) JobStatus(c *gin.Context) {
	if ctrl.jobs == nil {
		response.RespondJSON(c, "success", http.StatusOK, "Scheduler disabled", gin.H{"status": "stopped"}, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Scheduler status", ctrl.jobs.GetJobStatus(), nil)
}
