package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/2beens/pacebuddies/internal/broadcast"
	"github.com/2beens/pacebuddies/internal/events"
	"github.com/2beens/pacebuddies/internal/telemetry/metrics"
	"github.com/2beens/pacebuddies/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

var ErrInvalidSample = errors.New("invalid position sample")

const DefaultFreshnessWindow = 5 * time.Minute

type eventGetter interface {
	Get(ctx context.Context, id string) (*events.Event, error)
}

// Aggregator ingests runner position samples and reduces them to the latest
// position per runner. Fan-out is fire-and-forget, the pull endpoint backed
// by the store stays the authoritative view. Sample order is decided by the
// payload timestamp, never by arrival order.
type Aggregator struct {
	repo            *Repo
	eventsRepo      eventGetter
	broadcaster     broadcast.Broadcaster
	cache           *freecache.Cache
	cacheTTL        time.Duration
	freshnessWindow time.Duration
	metrics         *metrics.Manager

	now func() time.Time
}

type AggregatorParams struct {
	Repo            *Repo
	EventsRepo      eventGetter
	Broadcaster     broadcast.Broadcaster
	Cache           *freecache.Cache
	CacheTTL        time.Duration
	FreshnessWindow time.Duration
	Metrics         *metrics.Manager
}

func NewAggregator(params AggregatorParams) *Aggregator {
	if params.FreshnessWindow <= 0 {
		params.FreshnessWindow = DefaultFreshnessWindow
	}
	return &Aggregator{
		repo:            params.Repo,
		eventsRepo:      params.EventsRepo,
		broadcaster:     params.Broadcaster,
		cache:           params.Cache,
		cacheTTL:        params.CacheTTL,
		freshnessWindow: params.FreshnessWindow,
		metrics:         params.Metrics,
		now:             time.Now,
	}
}

// RecordPosition appends the sample and then always fans it out - the
// broadcast is not contingent on any reader being present, and a failed
// fan-out never fails the write.
func (a *Aggregator) RecordPosition(ctx context.Context, sample PositionSample) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "aggregator.position.record")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if sample.EventID == "" || sample.UserID == "" {
		return fmt.Errorf("%w: eventId and userId are mandatory", ErrInvalidSample)
	}

	if _, err := a.eventsRepo.Get(ctx, sample.EventID); err != nil {
		return err
	}

	if sample.Timestamp.IsZero() {
		sample.Timestamp = a.now()
	}

	if err := a.repo.Append(ctx, sample); err != nil {
		return fmt.Errorf("append position: %w", err)
	}

	a.metrics.CounterPositionUpdates.Inc()
	a.broadcastUpdate(ctx, sample)

	return nil
}

// LatestPositions reduces the event's samples inside the freshness window to
// one entry per runner, keeping the sample with the maximum timestamp. A
// runner whose samples are all stale drops out of the view entirely.
func (a *Aggregator) LatestPositions(ctx context.Context, eventID string) (_ []PositionSample, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "aggregator.position.latest")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if cached, err := a.cachedPositions(eventID); err == nil {
		return cached, nil
	}

	if _, err := a.eventsRepo.Get(ctx, eventID); err != nil {
		return nil, err
	}

	since := a.now().Add(-a.freshnessWindow)
	samples, err := a.repo.QueryByEvent(ctx, eventID, since)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}

	latestPerUser := make(map[string]PositionSample, len(samples))
	for _, sample := range samples {
		latest, seen := latestPerUser[sample.UserID]
		if !seen || sample.Timestamp.After(latest.Timestamp) {
			latestPerUser[sample.UserID] = sample
		}
	}

	latest := make([]PositionSample, 0, len(latestPerUser))
	for _, sample := range latestPerUser {
		latest = append(latest, sample)
	}
	sort.Slice(latest, func(i, j int) bool {
		return latest[i].UserID < latest[j].UserID
	})

	a.cachePositions(eventID, latest)

	return latest, nil
}

func (a *Aggregator) broadcastUpdate(ctx context.Context, sample PositionSample) {
	if err := a.broadcaster.Broadcast(ctx, sample.EventID, broadcast.TypeRunnerPositionUpdate, sample); err != nil {
		log.Errorf("broadcast position update for event %s: %s", sample.EventID, err)
		a.metrics.CounterBroadcastsFailed.Inc()
		return
	}
	a.metrics.CounterBroadcastsSent.With(prometheus.Labels{"type": broadcast.TypeRunnerPositionUpdate}).Inc()
}

func (a *Aggregator) cachedPositions(eventID string) ([]PositionSample, error) {
	if a.cache == nil {
		return nil, freecache.ErrNotFound
	}
	cached, err := a.cache.Get([]byte(eventID))
	if err != nil {
		return nil, err
	}
	var positions []PositionSample
	if err := json.Unmarshal(cached, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (a *Aggregator) cachePositions(eventID string, positions []PositionSample) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}
	positionsJson, err := json.Marshal(positions)
	if err != nil {
		log.Errorf("marshal positions for cache: %s", err)
		return
	}
	if err := a.cache.Set([]byte(eventID), positionsJson, int(a.cacheTTL.Seconds())); err != nil {
		log.Warnf("cache positions for event %s: %s", eventID, err)
	}
}
