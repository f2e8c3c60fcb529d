// Package audit records the outcome of every relay round trip.
//
// Publishing is best effort: a publisher never reports an error back to the
// request that produced the event.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Outcome values carried by Event.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event describes one completed or failed relay operation.
// It never carries access tokens or user profiles.
type Event struct {
	Time      time.Time `json:"time"`
	Action    string    `json:"action"`
	TenantID  string    `json:"tenant_id"`
	Outcome   string    `json:"outcome"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Publisher delivers audit events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a publisher writing to logger, or slog.Default when nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if event.Outcome == OutcomeFailure {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "audit",
		"action", event.Action,
		"tenant_id", event.TenantID,
		"outcome", event.Outcome,
		"stage", event.Stage,
		"reason", event.Reason,
		"request_id", event.RequestID,
		"time", event.Time,
	)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
