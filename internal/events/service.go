package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/2beens/pacebuddies/internal/broadcast"
	"github.com/2beens/pacebuddies/internal/telemetry/metrics"
	"github.com/2beens/pacebuddies/internal/telemetry/tracing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrNotHost       = errors.New("requester is not the event host")
	ErrForbidden     = errors.New("requester not allowed")
	ErrEventNotOpen  = errors.New("event is not open")
	ErrEventNotReady = errors.New("event is not ready")
	ErrNotRegistered = errors.New("user is not registered for the event")
)

// Coordinator owns the event entity and drives all its state transitions.
// All coordination state lives in the entity store - no locks, no in-process
// shared mutable state. The store is atomic per entity only, so every
// multi-step operation here is built to be safely retried.
type Coordinator struct {
	repo          *Repo
	registrations *Ledger
	readyMarks    *Ledger
	users         *UserDirectory
	broadcaster   broadcast.Broadcaster
	metrics       *metrics.Manager

	now func() time.Time
}

func NewCoordinator(
	repo *Repo,
	registrations *Ledger,
	readyMarks *Ledger,
	users *UserDirectory,
	broadcaster broadcast.Broadcaster,
	metricsManager *metrics.Manager,
) *Coordinator {
	return &Coordinator{
		repo:          repo,
		registrations: registrations,
		readyMarks:    readyMarks,
		users:         users,
		broadcaster:   broadcaster,
		metrics:       metricsManager,
		now:           time.Now,
	}
}

func (c *Coordinator) CreateEvent(ctx context.Context, hostID string, params NewEventParams) (_ *Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.create")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if params.Difficulty == "" {
		params.Difficulty = DefaultDifficulty
	}
	if params.RunType == "" {
		params.RunType = DefaultRunType
	}

	event := &Event{
		ID:                 uuid.NewString(),
		HostID:             hostID,
		Status:             StatusOpen,
		CreatedAt:          c.now(),
		ScheduledStartTime: params.ScheduledStartTime,
		TrackID:            params.TrackID,
		Latitude:           params.Latitude,
		Longitude:          params.Longitude,
		TrackLength:        params.TrackLength,
		Difficulty:         params.Difficulty,
		RunType:            params.RunType,
	}

	if err := c.repo.Add(ctx, event); err != nil {
		return nil, fmt.Errorf("add event: %w", err)
	}

	c.metrics.CounterEventsCreated.Inc()
	c.broadcast(ctx, event.ID, broadcast.TypeEventCreated, event)

	return event, nil
}

func (c *Coordinator) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	return c.repo.Get(ctx, eventID)
}

func (c *Coordinator) ListOpenEvents(ctx context.Context) ([]*Event, error) {
	return c.repo.ListOpen(ctx)
}

// UserEvents returns every event the user hosts or is registered for, one
// entry per event even when both hold. With futureOnly set, events that
// already started are left out.
func (c *Coordinator) UserEvents(ctx context.Context, userID string, futureOnly bool) (_ []*Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.userevents")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	hosted, err := c.repo.ListByHost(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list hosted events: %w", err)
	}

	userEvents := make(map[string]*Event, len(hosted))
	for _, event := range hosted {
		userEvents[event.ID] = event
	}

	registrations, err := c.registrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user registrations: %w", err)
	}
	for _, registration := range registrations {
		if _, ok := userEvents[registration.EventID]; ok {
			continue
		}
		event, err := c.repo.Get(ctx, registration.EventID)
		if err != nil {
			if errors.Is(err, ErrEventNotFound) {
				// registration outlived its event, the retention sweep will pick it up
				log.Warnf("registration of user %s points to missing event %s", userID, registration.EventID)
				continue
			}
			return nil, err
		}
		userEvents[registration.EventID] = event
	}

	events := make([]*Event, 0, len(userEvents))
	for _, event := range userEvents {
		if futureOnly && event.Status == StatusStarted {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ID < events[j].ID
	})

	return events, nil
}

// JoinEvent registers a user into an open event. A repeated join is not an
// error: the losing side of a concurrent insert race and a client retry both
// get the same success, flagged via alreadyJoined.
func (c *Coordinator) JoinEvent(ctx context.Context, eventID, userID string) (alreadyJoined bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.join")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	event, err := c.repo.Get(ctx, eventID)
	if err != nil {
		return false, err
	}
	if event.Status != StatusOpen {
		return false, ErrEventNotOpen
	}

	created, err := c.registrations.Create(ctx, eventID, userID, c.now())
	if err != nil {
		return false, fmt.Errorf("create registration: %w", err)
	}
	return !created, nil
}

// LeaveEvent removes a user's registration. Allowed for the user themselves
// and for the host. Idempotent - leaving while not registered still succeeds,
// flagged via wasRegistered.
func (c *Coordinator) LeaveEvent(ctx context.Context, eventID, leavingUserID, requesterID string) (wasRegistered bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.leave")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	event, err := c.repo.Get(ctx, eventID)
	if err != nil {
		return false, err
	}

	userExists, err := c.users.Exists(ctx, leavingUserID)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	if !userExists {
		return false, ErrUserNotFound
	}

	if requesterID != leavingUserID && requesterID != event.HostID {
		return false, ErrForbidden
	}

	wasRegistered, err = c.registrations.Delete(ctx, eventID, leavingUserID)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}

	if wasRegistered {
		c.broadcast(ctx, eventID, broadcast.TypeRunnerRemoved, runnerRemovedPayload{
			EventID: eventID,
			UserID:  leavingUserID,
		})
	}

	return wasRegistered, nil
}

// SetReady transitions the event open -> ready. Host only. Calling it again
// while already ready is an idempotent no-op.
func (c *Coordinator) SetReady(ctx context.Context, eventID, requesterID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.setready")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	event, err := c.repo.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if requesterID != event.HostID {
		return ErrNotHost
	}

	switch event.Status {
	case StatusReady:
		// already there, nothing to do
		return nil
	case StatusStarted:
		return ErrEventNotOpen
	}

	event.Status = StatusReady
	if err := c.repo.Update(ctx, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}

	c.broadcast(ctx, eventID, broadcast.TypeEventStatusChanged, statusChangedPayload{
		EventID: eventID,
		Status:  StatusReady,
	})

	return nil
}

// MarkUserReady records a registered user's readiness confirmation while the
// event is in ready state. Duplicates succeed, flagged via alreadyReady.
func (c *Coordinator) MarkUserReady(ctx context.Context, eventID, userID string) (alreadyReady bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.markready")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	event, err := c.repo.Get(ctx, eventID)
	if err != nil {
		return false, err
	}
	if event.Status != StatusReady {
		return false, ErrEventNotReady
	}

	registered, err := c.registrations.Exists(ctx, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	if !registered {
		return false, ErrNotRegistered
	}

	created, err := c.readyMarks.Create(ctx, eventID, userID, c.now())
	if err != nil {
		return false, fmt.Errorf("create ready mark: %w", err)
	}
	return !created, nil
}

// StartEvent prunes the registrations of everyone who did not confirm
// readiness, stamps the start and fans it out. The prune and the stamp are
// separate store writes - a crash in between leaves pruning done but the
// status untouched, and a retry re-derives both sets from current store
// state and converges. Once the event is started, further calls return the
// same result without re-pruning or re-broadcasting.
func (c *Coordinator) StartEvent(ctx context.Context, eventID, requesterID string) (_ *StartResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.start")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	event, err := c.repo.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if requesterID != event.HostID {
		return nil, ErrNotHost
	}

	if event.Status == StatusStarted {
		readyUsers, err := c.readySet(ctx, event)
		if err != nil {
			return nil, err
		}
		var startedAt time.Time
		if event.StartedAt != nil {
			startedAt = *event.StartedAt
		}
		return &StartResult{
			EventID:      eventID,
			StartedAt:    startedAt,
			TrackID:      event.TrackID,
			ReadyUsers:   readyUsers,
			RemovedUsers: []string{},
		}, nil
	}

	if event.Status != StatusReady {
		return nil, ErrEventNotReady
	}

	readyUsers, err := c.readySet(ctx, event)
	if err != nil {
		return nil, err
	}
	ready := make(map[string]bool, len(readyUsers))
	for _, userID := range readyUsers {
		ready[userID] = true
	}

	registrations, err := c.registrations.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	removedUsers := make([]string, 0)
	for _, registration := range registrations {
		if !ready[registration.UserID] {
			removedUsers = append(removedUsers, registration.UserID)
		}
	}
	sort.Strings(removedUsers)

	if len(removedUsers) > 0 {
		pruned, err := c.registrations.DeleteMany(ctx, eventID, removedUsers)
		if err != nil {
			return nil, fmt.Errorf("prune registrations: %w", err)
		}
		c.metrics.CounterPrunedRegistrations.Add(float64(pruned))
	}

	startedAt := c.now()
	event.Status = StatusStarted
	event.StartedAt = &startedAt
	if err := c.repo.Update(ctx, event); err != nil {
		return nil, fmt.Errorf("stamp event start: %w", err)
	}

	c.metrics.CounterEventsStarted.Inc()

	result := &StartResult{
		EventID:      eventID,
		StartedAt:    startedAt,
		TrackID:      event.TrackID,
		ReadyUsers:   readyUsers,
		RemovedUsers: removedUsers,
	}
	c.broadcast(ctx, eventID, broadcast.TypeEventStarted, result)

	return result, nil
}

// DeleteEvent removes the event and cascades its registrations. Ready marks
// and position samples are left for the retention sweep.
func (c *Coordinator) DeleteEvent(ctx context.Context, eventID, requesterID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "coordinator.event.delete")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	event, err := c.repo.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if requesterID != event.HostID {
		return ErrNotHost
	}

	existed, err := c.repo.Delete(ctx, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if !existed {
		return ErrEventNotFound
	}

	if _, err := c.registrations.DeleteAll(ctx, eventID); err != nil {
		return fmt.Errorf("cascade registrations: %w", err)
	}

	c.metrics.CounterEventsDeleted.Inc()
	c.broadcast(ctx, eventID, broadcast.TypeEventDeleted, eventDeletedPayload{EventID: eventID})

	return nil
}

func (c *Coordinator) RegisteredUsers(ctx context.Context, eventID string) ([]Entry, error) {
	if _, err := c.repo.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return c.registrations.ListByEvent(ctx, eventID)
}

func (c *Coordinator) ReadyUsers(ctx context.Context, eventID string) ([]Entry, error) {
	if _, err := c.repo.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return c.readyMarks.ListByEvent(ctx, eventID)
}

// readySet - everyone with a ready mark plus the host, sorted.
func (c *Coordinator) readySet(ctx context.Context, event *Event) ([]string, error) {
	marks, err := c.readyMarks.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("list ready marks: %w", err)
	}

	readySet := make(map[string]bool, len(marks)+1)
	for _, mark := range marks {
		readySet[mark.UserID] = true
	}
	readySet[event.HostID] = true

	readyUsers := make([]string, 0, len(readySet))
	for userID := range readySet {
		readyUsers = append(readyUsers, userID)
	}
	sort.Strings(readyUsers)

	return readyUsers, nil
}

// broadcast is fire-and-forget: a failed fan-out is logged and counted but
// never fails the operation, the pull endpoints remain the source of truth.
func (c *Coordinator) broadcast(ctx context.Context, eventID, msgType string, payload any) {
	if err := c.broadcaster.Broadcast(ctx, eventID, msgType, payload); err != nil {
		log.Errorf("broadcast %s for event %s: %s", msgType, eventID, err)
		c.metrics.CounterBroadcastsFailed.Inc()
		return
	}
	c.metrics.CounterBroadcastsSent.With(prometheus.Labels{"type": msgType}).Inc()
}
