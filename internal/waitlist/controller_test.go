package waitlist

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelevents/internal/shared/middleware"
)

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)
	engine := gin.New()
	SetupWaitlistRoutes(engine.Group("/api/v1"), NewController(svc))
	return engine
}

func do(t *testing.T, engine *gin.Engine, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

var organizer = map[string]string{middleware.RoleHeader: middleware.RoleOrganizer}

func entrant(id string) map[string]string {
	return map[string]string{middleware.EntrantHeader: id}
}

func TestControllerJoinFlow(t *testing.T) {
	engine := newTestEngine(t)

	rec, _ := do(t, engine, http.MethodPost, "/api/v1/waitlists", CreateWaitlistRequest{EventID: "evt-1", Capacity: 1}, organizer)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, entrant("A"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	var membership MembershipResponse
	require.NoError(t, json.Unmarshal(env.Data, &membership))
	assert.Equal(t, string(JoinAdmitted), membership.Outcome)
	assert.True(t, membership.IsMember)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, entrant("A"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, entrant("B"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "waitlist full", env.Message)

	rec, _ = do(t, engine, http.MethodDelete, "/api/v1/waitlists/evt-1/join", nil, entrant("A"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, engine, http.MethodGet, "/api/v1/waitlists/evt-1/size", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var size SizeResponse
	require.NoError(t, json.Unmarshal(env.Data, &size))
	assert.Equal(t, 0, size.Size)
}

func TestControllerErrors(t *testing.T) {
	engine := newTestEngine(t)

	rec, _ := do(t, engine, http.MethodPost, "/api/v1/waitlists/missing/join", nil, entrant("A"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists", CreateWaitlistRequest{EventID: "evt-1"}, entrant("A"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists", CreateWaitlistRequest{EventID: "evt-1", Capacity: -3}, organizer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, engine, http.MethodGet, "/api/v1/waitlists/missing", nil, organizer)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists", CreateWaitlistRequest{EventID: "evt-1"}, organizer)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/close", nil, organizer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, entrant("A"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, env.Message, "closed")
}

func TestControllerGetWaitlist(t *testing.T) {
	engine := newTestEngine(t)

	do(t, engine, http.MethodPost, "/api/v1/waitlists", CreateWaitlistRequest{EventID: "evt-1", Capacity: 4}, organizer)
	do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, entrant("A"))

	rec, env := do(t, engine, http.MethodGet, "/api/v1/waitlists/evt-1", nil, organizer)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WaitlistResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 4, resp.Capacity)
	assert.Equal(t, 1, resp.Size)
	assert.Equal(t, []string{"A"}, resp.Waiting)
	assert.Equal(t, []string{}, resp.Selected)

	rec, env = do(t, engine, http.MethodGet, "/api/v1/waitlists/evt-1/members/A", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var membership MembershipResponse
	require.NoError(t, json.Unmarshal(env.Data, &membership))
	assert.True(t, membership.IsMember)

	rec, _ = do(t, engine, http.MethodDelete, "/api/v1/waitlists/evt-1", nil, organizer)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControllerRespondFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)
	engine := gin.New()
	SetupWaitlistRoutes(engine.Group("/api/v1"), NewController(svc))

	do(t, engine, http.MethodPost, "/api/v1/waitlists", CreateWaitlistRequest{EventID: "evt-1", Capacity: 4}, organizer)
	for _, id := range []string{"A", "B", "C"} {
		do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, entrant(id))
	}

	ctx := context.Background()
	lease, err := svc.BeginDraw(ctx, "evt-1")
	require.NoError(t, err)
	require.NoError(t, svc.CommitDraw(ctx, lease, []string{"A", "B"}, time.Now()))

	// a drawn entrant is neither waiting nor allowed back in
	rec, env := do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/join", nil, entrant("A"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	var membership MembershipResponse
	require.NoError(t, json.Unmarshal(env.Data, &membership))
	assert.Equal(t, string(JoinAlreadyDrawn), membership.Outcome)
	assert.False(t, membership.IsMember)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/respond", gin.H{}, entrant("A"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/respond", gin.H{"accept": true}, entrant("A"))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &membership))
	assert.Equal(t, string(RespondAccepted), membership.Outcome)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/respond", gin.H{"accept": false}, entrant("B"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/respond", gin.H{"accept": true}, entrant("B"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/respond", gin.H{"accept": true}, entrant("C"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/missing/respond", gin.H{"accept": true}, entrant("A"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, engine, http.MethodPost, "/api/v1/waitlists/evt-1/respond", gin.H{"accept": true}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = do(t, engine, http.MethodGet, "/api/v1/waitlists/evt-1/members/B", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	membership = MembershipResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &membership))
	assert.Equal(t, string(RespondDeclined), membership.Response)
	assert.False(t, membership.IsMember)
	assert.False(t, membership.Selected)

	rec, env = do(t, engine, http.MethodGet, "/api/v1/waitlists/evt-1", nil, organizer)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp WaitlistResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, []string{"A"}, resp.Accepted)
	assert.Equal(t, []string{"B"}, resp.Declined)
	assert.Equal(t, []string{}, resp.Selected)
}
