package waitlist

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pixelevents/internal/shared/middleware"
	"pixelevents/internal/shared/utils/response"
)

type Controller interface {
	CreateWaitlist(c *gin.Context)
	GetWaitlist(c *gin.Context)
	DeleteWaitlist(c *gin.Context)
	CloseWaitlist(c *gin.Context)
	ReopenWaitlist(c *gin.Context)
	JoinWaitlist(c *gin.Context)
	LeaveWaitlist(c *gin.Context)
	RespondToInvitation(c *gin.Context)
	GetMembership(c *gin.Context)
	GetSize(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) CreateWaitlist(c *gin.Context) {
	var req CreateWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	entry, err := ctrl.service.CreateWaitlist(c.Request.Context(), &req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Waitlist created successfully", entry.ToResponse(), nil)
}

func (ctrl *controller) GetWaitlist(c *gin.Context) {
	entry, err := ctrl.service.GetWaitlist(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Waitlist retrieved successfully", entry.ToResponse(), nil)
}

func (ctrl *controller) DeleteWaitlist(c *gin.Context) {
	if err := ctrl.service.DeleteWaitlist(c.Request.Context(), c.Param("event_id")); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Waitlist deleted successfully", nil, nil)
}

func (ctrl *controller) CloseWaitlist(c *gin.Context) {
	if err := ctrl.service.CloseWaitlist(c.Request.Context(), c.Param("event_id")); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Waitlist closed", gin.H{"status": StatusClosed}, nil)
}

func (ctrl *controller) ReopenWaitlist(c *gin.Context) {
	if err := ctrl.service.ReopenWaitlist(c.Request.Context(), c.Param("event_id")); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Waitlist reopened", gin.H{"status": StatusWaiting}, nil)
}

func (ctrl *controller) JoinWaitlist(c *gin.Context) {
	eventID := c.Param("event_id")
	entrantID, ok := middleware.GetEntrantID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Entrant not identified", nil, nil)
		return
	}

	outcome, err := ctrl.service.Join(c.Request.Context(), eventID, entrantID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	data := MembershipResponse{
		EventID:   eventID,
		EntrantID: entrantID,
		Outcome:   string(outcome),
		IsMember:  outcome == JoinAdmitted || outcome == JoinAlreadyMember,
	}

	switch outcome {
	case JoinAdmitted:
		response.RespondJSON(c, "success", http.StatusCreated, "Joined waitlist", data, nil)
	case JoinAlreadyMember:
		response.RespondJSON(c, "success", http.StatusOK, "Already on waitlist", data, nil)
	case JoinAlreadyDrawn:
		response.RespondJSON(c, "error", http.StatusConflict, "already drawn for this event", data, nil)
	case JoinFull:
		response.RespondJSON(c, "error", http.StatusConflict, "waitlist full", data, nil)
	default:
		response.RespondJSON(c, "error", http.StatusNotFound, "waitlist not found", data, nil)
	}
}

func (ctrl *controller) LeaveWaitlist(c *gin.Context) {
	eventID := c.Param("event_id")
	entrantID, ok := middleware.GetEntrantID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Entrant not identified", nil, nil)
		return
	}

	outcome, err := ctrl.service.Leave(c.Request.Context(), eventID, entrantID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	data := MembershipResponse{
		EventID:   eventID,
		EntrantID: entrantID,
		Outcome:   string(outcome),
	}

	switch outcome {
	case LeaveRemoved:
		response.RespondJSON(c, "success", http.StatusOK, "Left waitlist", data, nil)
	case LeaveNotMember:
		response.RespondJSON(c, "success", http.StatusOK, "Not on waitlist", data, nil)
	default:
		response.RespondJSON(c, "error", http.StatusNotFound, "waitlist not found", data, nil)
	}
}

func (ctrl *controller) RespondToInvitation(c *gin.Context) {
	eventID := c.Param("event_id")
	entrantID, ok := middleware.GetEntrantID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Entrant not identified", nil, nil)
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	outcome, err := ctrl.service.Respond(c.Request.Context(), eventID, entrantID, *req.Accept)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	data := MembershipResponse{
		EventID:   eventID,
		EntrantID: entrantID,
		Outcome:   string(outcome),
	}

	switch outcome {
	case RespondAccepted:
		response.RespondJSON(c, "success", http.StatusOK, "Invitation accepted", data, nil)
	case RespondDeclined:
		response.RespondJSON(c, "success", http.StatusOK, "Invitation declined", data, nil)
	case RespondAlreadyResponded:
		response.RespondJSON(c, "error", http.StatusConflict, "invitation already answered", data, nil)
	case RespondNotSelected:
		response.RespondJSON(c, "error", http.StatusForbidden, "entrant was not selected", data, nil)
	default:
		response.RespondJSON(c, "error", http.StatusNotFound, "waitlist not found", data, nil)
	}
}

func (ctrl *controller) GetMembership(c *gin.Context) {
	eventID := c.Param("event_id")
	entrantID := c.Param("entrant_id")

	entry, err := ctrl.service.GetWaitlist(c.Request.Context(), eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	data := MembershipResponse{
		EventID:   eventID,
		EntrantID: entrantID,
		IsMember:  entry.IsMember(entrantID),
		Selected:  entry.IsSelected(entrantID),
	}
	switch {
	case entry.HasAccepted(entrantID):
		data.Response = string(RespondAccepted)
	case entry.HasDeclined(entrantID):
		data.Response = string(RespondDeclined)
	}

	response.RespondJSON(c, "success", http.StatusOK, "Membership retrieved", data, nil)
}

func (ctrl *controller) GetSize(c *gin.Context) {
	eventID := c.Param("event_id")

	size, err := ctrl.service.Size(c.Request.Context(), eventID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Size retrieved", SizeResponse{
		EventID: eventID,
		Size:    size,
	}, nil)
}
