package events

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/pacebuddies/internal/auth"
	"github.com/2beens/pacebuddies/internal/telemetry/tracing"
	"github.com/2beens/pacebuddies/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type createEventRequest struct {
	ScheduledStartTime time.Time `json:"scheduledStartTime"`
	TrackID            string    `json:"trackId"`
	Latitude           *float64  `json:"latitude"`
	Longitude          *float64  `json:"longitude"`
	TrackLength        float64   `json:"trackLength"`
	Difficulty         string    `json:"difficulty"`
	RunType            string    `json:"runType"`
}

type leaveEventRequest struct {
	UserID string `json:"userId"`
}

type joinEventResponse struct {
	EventID       string `json:"eventId"`
	UserID        string `json:"userId"`
	AlreadyJoined bool   `json:"alreadyJoined"`
}

type leaveEventResponse struct {
	EventID       string `json:"eventId"`
	UserID        string `json:"userId"`
	WasRegistered bool   `json:"wasRegistered"`
}

type markReadyResponse struct {
	EventID      string `json:"eventId"`
	UserID       string `json:"userId"`
	AlreadyReady bool   `json:"alreadyReady"`
}

type Handler struct {
	coordinator *Coordinator
}

func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{
		coordinator: coordinator,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	// static path before the {id} catch-all
	router.HandleFunc("/events/open", handler.handleListOpen).Methods("GET").Name("open-events")
	router.HandleFunc("/events", handler.handleCreate).Methods("POST", "OPTIONS").Name("new-event")
	router.HandleFunc("/events/{id}", handler.handleGet).Methods("GET").Name("get-event")
	router.HandleFunc("/events/{id}", handler.handleDelete).Methods("DELETE", "OPTIONS").Name("delete-event")
	router.HandleFunc("/events/{id}/join", handler.handleJoin).Methods("POST", "OPTIONS").Name("join-event")
	router.HandleFunc("/events/{id}/leave", handler.handleLeave).Methods("POST", "OPTIONS").Name("leave-event")
	router.HandleFunc("/events/{id}/ready", handler.handleSetReady).Methods("POST", "OPTIONS").Name("event-ready")
	router.HandleFunc("/events/{id}/start", handler.handleStart).Methods("POST", "OPTIONS").Name("start-event")
	router.HandleFunc("/events/{id}/users", handler.handleRegisteredUsers).Methods("GET").Name("event-users")
	router.HandleFunc("/events/{id}/users/ready", handler.handleReadyUsers).Methods("GET").Name("event-ready-users")
	router.HandleFunc("/events/{id}/users/ready", handler.handleMarkUserReady).Methods("POST", "OPTIONS").Name("mark-user-ready")
	router.HandleFunc("/users/{id}/events", handler.handleUserEvents).Methods("GET").Name("user-events")
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.create")
	defer span.End()

	var createReq createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&createReq); err != nil {
		log.Errorf("new event, unmarshal json params: %s", err)
		http.Error(w, "create event failed", http.StatusBadRequest)
		return
	}

	if createReq.Latitude == nil || createReq.Longitude == nil {
		http.Error(w, "error, latitude/longitude empty", http.StatusBadRequest)
		return
	}
	if createReq.ScheduledStartTime.IsZero() {
		http.Error(w, "error, scheduledStartTime empty", http.StatusBadRequest)
		return
	}

	hostID := auth.UserIDFromContext(ctx)

	event, err := handler.coordinator.CreateEvent(ctx, hostID, NewEventParams{
		ScheduledStartTime: createReq.ScheduledStartTime,
		TrackID:            createReq.TrackID,
		Latitude:           *createReq.Latitude,
		Longitude:          *createReq.Longitude,
		TrackLength:        createReq.TrackLength,
		Difficulty:         createReq.Difficulty,
		RunType:            createReq.RunType,
	})
	if err != nil {
		log.Errorf("create event: %s", err)
		http.Error(w, "create event failed", http.StatusInternalServerError)
		return
	}

	log.Tracef("new event %s created by %s", event.ID, hostID)

	writeEventJSON(w, event, http.StatusCreated)
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.get")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	event, err := handler.coordinator.GetEvent(ctx, eventID)
	if err != nil {
		handler.writeError(w, "get event", eventID, err)
		return
	}

	writeEventJSON(w, event, http.StatusOK)
}

func (handler *Handler) handleListOpen(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.listopen")
	defer span.End()

	openEvents, err := handler.coordinator.ListOpenEvents(ctx)
	if err != nil {
		log.Errorf("list open events: %s", err)
		http.Error(w, "list open events failed", http.StatusInternalServerError)
		return
	}

	openEventsJson, err := json.Marshal(openEvents)
	if err != nil {
		log.Errorf("marshal open events: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, openEventsJson)
}

// handleUserEvents lists the events a user hosts or runs in. Callers can use
// "me" for their own. With ?future=true only events not yet started come back.
func (handler *Handler) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.userevents")
	defer span.End()

	userID := mux.Vars(r)["id"]
	if userID == "me" {
		userID = auth.UserIDFromContext(ctx)
	}
	futureOnly := r.URL.Query().Get("future") == "true"

	userEvents, err := handler.coordinator.UserEvents(ctx, userID, futureOnly)
	if err != nil {
		log.Errorf("list events of user [%s]: %s", userID, err)
		http.Error(w, "list user events failed", http.StatusInternalServerError)
		return
	}

	userEventsJson, err := json.Marshal(userEvents)
	if err != nil {
		log.Errorf("marshal user events: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, userEventsJson)
}

func (handler *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.join")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	userID := auth.UserIDFromContext(ctx)

	alreadyJoined, err := handler.coordinator.JoinEvent(ctx, eventID, userID)
	if err != nil {
		handler.writeError(w, "join event", eventID, err)
		return
	}

	status := http.StatusCreated
	if alreadyJoined {
		status = http.StatusOK
	}

	respJson, err := json.Marshal(joinEventResponse{
		EventID:       eventID,
		UserID:        userID,
		AlreadyJoined: alreadyJoined,
	})
	if err != nil {
		log.Errorf("marshal join response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, status)
}

func (handler *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.leave")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	requesterID := auth.UserIDFromContext(ctx)

	// host can remove another runner, body names the leaving user
	leavingUserID := requesterID
	var leaveReq leaveEventRequest
	if err := json.NewDecoder(r.Body).Decode(&leaveReq); err == nil && leaveReq.UserID != "" {
		leavingUserID = leaveReq.UserID
	}

	wasRegistered, err := handler.coordinator.LeaveEvent(ctx, eventID, leavingUserID, requesterID)
	if err != nil {
		handler.writeError(w, "leave event", eventID, err)
		return
	}

	respJson, err := json.Marshal(leaveEventResponse{
		EventID:       eventID,
		UserID:        leavingUserID,
		WasRegistered: wasRegistered,
	})
	if err != nil {
		log.Errorf("marshal leave response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) handleSetReady(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.setready")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	requesterID := auth.UserIDFromContext(ctx)

	if err := handler.coordinator.SetReady(ctx, eventID, requesterID); err != nil {
		handler.writeError(w, "set event ready", eventID, err)
		return
	}

	pkg.WriteTextResponseOK(w, "ready:"+eventID)
}

func (handler *Handler) handleMarkUserReady(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.markready")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	userID := auth.UserIDFromContext(ctx)

	alreadyReady, err := handler.coordinator.MarkUserReady(ctx, eventID, userID)
	if err != nil {
		handler.writeError(w, "mark user ready", eventID, err)
		return
	}

	status := http.StatusCreated
	if alreadyReady {
		status = http.StatusOK
	}

	respJson, err := json.Marshal(markReadyResponse{
		EventID:      eventID,
		UserID:       userID,
		AlreadyReady: alreadyReady,
	})
	if err != nil {
		log.Errorf("marshal mark ready response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, status)
}

func (handler *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.start")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	requesterID := auth.UserIDFromContext(ctx)

	result, err := handler.coordinator.StartEvent(ctx, eventID, requesterID)
	if err != nil {
		handler.writeError(w, "start event", eventID, err)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("marshal start result: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, resultJson)
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.delete")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	requesterID := auth.UserIDFromContext(ctx)

	if err := handler.coordinator.DeleteEvent(ctx, eventID, requesterID); err != nil {
		handler.writeError(w, "delete event", eventID, err)
		return
	}

	pkg.WriteTextResponseOK(w, "deleted:"+eventID)
}

func (handler *Handler) handleRegisteredUsers(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.users")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	entries, err := handler.coordinator.RegisteredUsers(ctx, eventID)
	if err != nil {
		handler.writeError(w, "get registered users", eventID, err)
		return
	}

	writeEntriesJSON(w, entries)
}

func (handler *Handler) handleReadyUsers(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.event.readyusers")
	defer span.End()

	eventID := mux.Vars(r)["id"]
	entries, err := handler.coordinator.ReadyUsers(ctx, eventID)
	if err != nil {
		handler.writeError(w, "get ready users", eventID, err)
		return
	}

	writeEntriesJSON(w, entries)
}

// writeError maps domain errors to status codes. Store faults stay in the
// logs, the caller gets a generic message.
func (handler *Handler) writeError(w http.ResponseWriter, op, eventID string, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrUserNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrNotHost), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotRegistered):
		http.Error(w, "not allowed", http.StatusForbidden)
	case errors.Is(err, ErrEventNotOpen), errors.Is(err, ErrEventNotReady):
		http.Error(w, "conflict with current event status", http.StatusConflict)
	default:
		log.Errorf("%s [%s]: %s", op, eventID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeEventJSON(w http.ResponseWriter, event *Event, status int) {
	eventJson, err := json.Marshal(event)
	if err != nil {
		log.Errorf("marshal event %s: %s", event.ID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, eventJson, status)
}

func writeEntriesJSON(w http.ResponseWriter, entries []Entry) {
	entriesJson, err := json.Marshal(entries)
	if err != nil {
		log.Errorf("marshal ledger entries: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, entriesJson)
}
