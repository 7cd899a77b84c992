package events

import (
	"time"
)

type Status string

const (
	StatusOpen    Status = "open"
	StatusReady   Status = "ready"
	StatusStarted Status = "started"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusReady, StatusStarted:
		return true
	}
	return false
}

const (
	DefaultDifficulty = "beginner"
	DefaultRunType    = "street"
)

// Event - a scheduled group run. The host (creator) is the sole authority
// for status transitions. Status moves open -> ready -> started, never back.
type Event struct {
	ID                 string     `json:"id"`
	HostID             string     `json:"hostId"`
	Status             Status     `json:"status"`
	CreatedAt          time.Time  `json:"createdAt"`
	ScheduledStartTime time.Time  `json:"scheduledStartTime"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	TrackID            string     `json:"trackId,omitempty"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	TrackLength        float64    `json:"trackLength"`
	Difficulty         string     `json:"difficulty"`
	RunType            string     `json:"runType"`
}

type NewEventParams struct {
	ScheduledStartTime time.Time
	TrackID            string
	Latitude           float64
	Longitude          float64
	TrackLength        float64
	Difficulty         string
	RunType            string
}

// StartResult mirrors the eventStarted broadcast payload.
type StartResult struct {
	EventID      string    `json:"eventId"`
	StartedAt    time.Time `json:"startedAt"`
	TrackID      string    `json:"trackId,omitempty"`
	ReadyUsers   []string  `json:"readyUsers"`
	RemovedUsers []string  `json:"removedUsers"`
}

type statusChangedPayload struct {
	EventID string `json:"eventId"`
	Status  Status `json:"status"`
}

type eventDeletedPayload struct {
	EventID string `json:"eventId"`
}

type runnerRemovedPayload struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}
