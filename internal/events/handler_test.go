package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/pacebuddies/internal/auth"
	"github.com/2beens/pacebuddies/internal/broadcast"
	"github.com/2beens/pacebuddies/internal/store"
	"github.com/2beens/pacebuddies/internal/telemetry/metrics"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerTestTools struct {
	router      *mux.Router
	coordinator *Coordinator
	broadcaster *broadcast.TestBroadcaster
}

func newHandlerTestTools(t *testing.T) *handlerTestTools {
	t.Helper()

	db := store.NewMemStore()
	broadcaster := broadcast.NewTestBroadcaster()
	coordinator := NewCoordinator(
		NewRepo(db),
		NewRegistrationLedger(db),
		NewReadinessLedger(db),
		NewUserDirectory(db),
		broadcaster,
		metrics.NewTestManager(),
	)

	router := mux.NewRouter()
	NewHandler(coordinator).SetupRoutes(router)

	return &handlerTestTools{
		router:      router,
		coordinator: coordinator,
		broadcaster: broadcaster,
	}
}

// doRequest serves the request with the caller identity already resolved,
// the way the auth middleware does it.
func (tools *handlerTestTools) doRequest(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader *bytes.Reader
	if body != nil {
		bodyJson, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(bodyJson)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	require.NoError(t, err)
	if userID != "" {
		req = req.WithContext(auth.ContextWithUserID(context.Background(), userID))
	}

	rr := httptest.NewRecorder()
	tools.router.ServeHTTP(rr, req)
	return rr
}

func validCreateEventBody() map[string]any {
	return map[string]any{
		"scheduledStartTime": time.Now().Add(time.Hour).Format(time.RFC3339),
		"latitude":           gofakeit.Latitude(),
		"longitude":          gofakeit.Longitude(),
		"trackLength":        5.0,
		"difficulty":         "advanced",
	}
}

func TestHandler_CreateEvent(t *testing.T) {
	tools := newHandlerTestTools(t)

	rr := tools.doRequest(t, http.MethodPost, "/events", "host-1", validCreateEventBody())
	require.Equal(t, http.StatusCreated, rr.Code)

	var event Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "host-1", event.HostID)
	assert.Equal(t, StatusOpen, event.Status)
	assert.Equal(t, "advanced", event.Difficulty)
	assert.Equal(t, DefaultRunType, event.RunType)
}

func TestHandler_CreateEvent_BadRequest(t *testing.T) {
	tools := newHandlerTestTools(t)

	for name, body := range map[string]map[string]any{
		"missing coordinates": {
			"scheduledStartTime": time.Now().Add(time.Hour).Format(time.RFC3339),
		},
		"missing start time": {
			"latitude":  44.0,
			"longitude": 20.0,
		},
	} {
		t.Run(name, func(t *testing.T) {
			rr := tools.doRequest(t, http.MethodPost, "/events", "host-1", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandler_GetEvent(t *testing.T) {
	tools := newHandlerTestTools(t)

	event := createTestEvent(t, tools.coordinator, "host-1")

	rr := tools.doRequest(t, http.MethodGet, "/events/"+event.ID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var gotEvent Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotEvent))
	assert.Equal(t, event.ID, gotEvent.ID)

	rr = tools.doRequest(t, http.MethodGet, "/events/no-such-event", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_ListOpenEvents(t *testing.T) {
	tools := newHandlerTestTools(t)

	createTestEvent(t, tools.coordinator, "host-1")
	createTestEvent(t, tools.coordinator, "host-2")

	rr := tools.doRequest(t, http.MethodGet, "/events/open", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var openEvents []*Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &openEvents))
	assert.Len(t, openEvents, 2)
}

func TestHandler_JoinEvent(t *testing.T) {
	tools := newHandlerTestTools(t)

	event := createTestEvent(t, tools.coordinator, "host-1")
	joinPath := fmt.Sprintf("/events/%s/join", event.ID)

	rr := tools.doRequest(t, http.MethodPost, joinPath, "runner-1", nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var joinResp joinEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &joinResp))
	assert.False(t, joinResp.AlreadyJoined)

	// repeated join is fine, replays as 200
	rr = tools.doRequest(t, http.MethodPost, joinPath, "runner-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &joinResp))
	assert.True(t, joinResp.AlreadyJoined)
}

func TestHandler_StartEvent(t *testing.T) {
	tools := newHandlerTestTools(t)
	ctx := context.Background()

	event := createTestEvent(t, tools.coordinator, "host-1")
	_, err := tools.coordinator.JoinEvent(ctx, event.ID, "runner-1")
	require.NoError(t, err)

	startPath := fmt.Sprintf("/events/%s/start", event.ID)

	// still open
	rr := tools.doRequest(t, http.MethodPost, startPath, "host-1", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	require.NoError(t, tools.coordinator.SetReady(ctx, event.ID, "host-1"))

	// not the host
	rr = tools.doRequest(t, http.MethodPost, startPath, "runner-1", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = tools.doRequest(t, http.MethodPost, startPath, "host-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result StartResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, []string{"host-1"}, result.ReadyUsers)
	assert.Equal(t, []string{"runner-1"}, result.RemovedUsers)
}

func TestHandler_RegisteredUsers(t *testing.T) {
	tools := newHandlerTestTools(t)
	ctx := context.Background()

	event := createTestEvent(t, tools.coordinator, "host-1")
	_, err := tools.coordinator.JoinEvent(ctx, event.ID, "runner-1")
	require.NoError(t, err)

	rr := tools.doRequest(t, http.MethodGet, fmt.Sprintf("/events/%s/users", event.ID), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "runner-1", entries[0].UserID)

	rr = tools.doRequest(t, http.MethodGet, "/events/no-such-event/users", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_DeleteEvent(t *testing.T) {
	tools := newHandlerTestTools(t)

	event := createTestEvent(t, tools.coordinator, "host-1")

	rr := tools.doRequest(t, http.MethodDelete, "/events/"+event.ID, "runner-1", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = tools.doRequest(t, http.MethodDelete, "/events/"+event.ID, "host-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "deleted:"+event.ID, rr.Body.String())

	rr = tools.doRequest(t, http.MethodGet, "/events/"+event.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_UserEvents(t *testing.T) {
	tools := newHandlerTestTools(t)
	ctx := context.Background()

	hosted := createTestEvent(t, tools.coordinator, "runner-a")
	joined := createTestEvent(t, tools.coordinator, "host-2")
	createTestEvent(t, tools.coordinator, "host-3") // unrelated

	_, err := tools.coordinator.JoinEvent(ctx, joined.ID, "runner-a")
	require.NoError(t, err)

	rr := tools.doRequest(t, http.MethodGet, "/users/me/events", "runner-a", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var userEvents []Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &userEvents))
	require.Len(t, userEvents, 2)
	gotIDs := []string{userEvents[0].ID, userEvents[1].ID}
	assert.ElementsMatch(t, []string{hosted.ID, joined.ID}, gotIDs)

	// any authenticated caller can ask by user id
	rr = tools.doRequest(t, http.MethodGet, "/users/runner-a/events", "host-2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	userEvents = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &userEvents))
	assert.Len(t, userEvents, 2)

	// start the hosted event, future=true leaves it out
	require.NoError(t, tools.coordinator.SetReady(ctx, hosted.ID, "runner-a"))
	_, err = tools.coordinator.StartEvent(ctx, hosted.ID, "runner-a")
	require.NoError(t, err)

	rr = tools.doRequest(t, http.MethodGet, "/users/me/events?future=true", "runner-a", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	userEvents = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &userEvents))
	require.Len(t, userEvents, 1)
	assert.Equal(t, joined.ID, userEvents[0].ID)
}
