package notifications

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pixelevents/internal/shared/middleware"
	"pixelevents/internal/shared/utils/response"
)

type Controller interface {
	ListInbox(c *gin.Context)
	MarkRead(c *gin.Context)
	Broadcast(c *gin.Context)
	ListAuditLog(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) ListInbox(c *gin.Context) {
	entrantID, ok := middleware.GetEntrantID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Entrant identity required", nil, nil)
		return
	}

	var query ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	items, err := ctrl.service.ListInbox(c.Request.Context(), entrantID, &query)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if items == nil {
		items = []Notification{}
	}

	response.RespondJSON(c, "success", http.StatusOK, "Notifications retrieved successfully", gin.H{
		"notifications": items,
		"limit":         query.Limit,
		"offset":        query.Offset,
	}, nil)
}

func (ctrl *controller) MarkRead(c *gin.Context) {
	entrantID, ok := middleware.GetEntrantID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Entrant identity required", nil, nil)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid notification ID", nil, err.Error())
		return
	}

	if err := ctrl.service.MarkRead(c.Request.Context(), entrantID, id); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Notification marked as read", nil, nil)
}

func (ctrl *controller) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	report, err := ctrl.service.Broadcast(c.Request.Context(), c.Param("event_id"), &req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Broadcast sent", report, nil)
}

func (ctrl *controller) ListAuditLog(c *gin.Context) {
	var query ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	entries, err := ctrl.service.ListAuditLog(c.Request.Context(), c.Query("event_id"), &query)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if entries == nil {
		entries = []NotificationLog{}
	}

	response.RespondJSON(c, "success", http.StatusOK, "Audit log retrieved successfully", gin.H{
		"entries": entries,
		"limit":   query.Limit,
		"offset":  query.Offset,
	}, nil)
}
