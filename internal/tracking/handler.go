package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2beens/pacebuddies/internal/auth"
	"github.com/2beens/pacebuddies/internal/events"
	"github.com/2beens/pacebuddies/internal/telemetry/tracing"
	"github.com/2beens/pacebuddies/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=handler.go -destination=mock_service_test.go -package=tracking_test

type service interface {
	RecordPosition(ctx context.Context, sample PositionSample) error
	LatestPositions(ctx context.Context, eventID string) ([]PositionSample, error)
}

type positionUpdateRequest struct {
	Timestamp     *int64   `json:"timestamp"` // unix seconds, optional
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Speed         float64  `json:"speed"`
	Heading       float64  `json:"heading"`
	DistanceSoFar float64  `json:"distanceSoFar"`
	ElapsedTime   float64  `json:"elapsedTime"`
}

type Handler struct {
	service service
}

func NewHandler(service service) *Handler {
	return &Handler{
		service: service,
	}
}

// SetupRoutes registers the position routes. The update route optionally
// goes through a rate limiting middleware - it is the one high-frequency
// write path of the service.
func (handler *Handler) SetupRoutes(router *mux.Router, rateLimit func(next http.Handler) http.Handler) {
	var updateHandler http.Handler = http.HandlerFunc(handler.handleUpdatePosition)
	if rateLimit != nil {
		updateHandler = rateLimit(updateHandler)
	}
	router.Handle("/events/{id}/positions", updateHandler).Methods("POST", "OPTIONS").Name("update-position")
	router.HandleFunc("/events/{id}/positions", handler.handleLatestPositions).Methods("GET").Name("latest-positions")
}

func (handler *Handler) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.position.update")
	defer span.End()

	var updateReq positionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&updateReq); err != nil {
		log.Errorf("update position, unmarshal json params: %s", err)
		http.Error(w, "update position failed", http.StatusBadRequest)
		return
	}

	if updateReq.Latitude == nil || updateReq.Longitude == nil {
		http.Error(w, "error, latitude/longitude empty", http.StatusBadRequest)
		return
	}

	eventID := mux.Vars(r)["id"]
	userID := auth.UserIDFromContext(ctx)

	sample := PositionSample{
		EventID:       eventID,
		UserID:        userID,
		Latitude:      *updateReq.Latitude,
		Longitude:     *updateReq.Longitude,
		Speed:         updateReq.Speed,
		Heading:       updateReq.Heading,
		DistanceSoFar: updateReq.DistanceSoFar,
		ElapsedTime:   updateReq.ElapsedTime,
	}
	if updateReq.Timestamp != nil {
		sample.Timestamp = time.Unix(*updateReq.Timestamp, 0)
	}

	if err := handler.service.RecordPosition(ctx, sample); err != nil {
		switch {
		case errors.Is(err, ErrInvalidSample):
			http.Error(w, "invalid position sample", http.StatusBadRequest)
		case errors.Is(err, events.ErrEventNotFound):
			http.Error(w, "event not found", http.StatusNotFound)
		default:
			log.Errorf("record position [event %s]: %s", eventID, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	pkg.WriteTextResponseOK(w, "ok")
}

func (handler *Handler) handleLatestPositions(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.position.latest")
	defer span.End()

	eventID := mux.Vars(r)["id"]

	positions, err := handler.service.LatestPositions(ctx, eventID)
	if err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		log.Errorf("get latest positions [event %s]: %s", eventID, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	positionsJson, err := json.Marshal(positions)
	if err != nil {
		log.Errorf("marshal latest positions: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, positionsJson)
}
