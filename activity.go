package kyc

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSessionStarted ActivityEventType = "kyc.session.started"
	ActivityEventStatusChanged  ActivityEventType = "kyc.status.changed"
	ActivityEventDuplicate      ActivityEventType = "kyc.event.duplicate"
	ActivityEventUnknownSession ActivityEventType = "kyc.event.unknown_session"
	ActivityEventTransitionNoop ActivityEventType = "kyc.event.noop"
	ActivityEventAuthFailure    ActivityEventType = "kyc.webhook.rejected"
)

// ActivityEvent captures audit-friendly information about a KYC action.
type ActivityEvent struct {
	EventType  ActivityEventType `json:"event_type"`
	UserID     string            `json:"user_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	EventID    string            `json:"provider_event_id,omitempty"`
	FromStatus KYCStatus         `json:"from_status,omitempty"`
	ToStatus   KYCStatus         `json:"to_status,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity forwards to the sink and only logs failures.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("kyc activity sink error: %v", err)
	}
}
