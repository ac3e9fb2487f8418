package kyc

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TransitionOutcome describes what happened to a claimed event.
type TransitionOutcome string

const (
	OutcomeTransitioned   TransitionOutcome = "transitioned"
	OutcomeNoop           TransitionOutcome = "noop"
	OutcomeIgnored        TransitionOutcome = "ignored"
	OutcomeUnknownSession TransitionOutcome = "unknown_session"
	OutcomeDuplicate      TransitionOutcome = "duplicate"
)

// TransitionResult reports the effect of applying an event. Err holds the
// swallowed anomaly (ErrUnknownSession, ErrInvalidTransition) when there is
// one; it is informational and never returned to the provider.
type TransitionResult struct {
	Outcome   TransitionOutcome
	UserID    uuid.UUID
	SessionID string
	From      KYCStatus
	To        KYCStatus
	Err       error
}

// Changed reports whether the event moved the user to a new status.
func (r *TransitionResult) Changed() bool {
	return r != nil && r.Outcome == OutcomeTransitioned
}

type transitionRule struct {
	from []KYCStatus
	to   KYCStatus
}

func (r transitionRule) allows(status KYCStatus) bool {
	for _, s := range r.from {
		if s == status {
			return true
		}
	}
	return false
}

// defaultTransitionRules is the precondition table. Verified is absorbing and
// session.verified wins over any earlier non-verified outcome.
var defaultTransitionRules = map[EventKind]transitionRule{
	EventKindSessionVerified: {
		from: []KYCStatus{StatusUnverified, StatusPending, StatusFailed, StatusCanceled},
		to:   StatusVerified,
	},
	EventKindSessionRequiresInput: {
		from: []KYCStatus{StatusPending},
		to:   StatusFailed,
	},
	EventKindSessionCanceled: {
		from: []KYCStatus{StatusPending},
		to:   StatusCanceled,
	},
}

// NextStatus returns the status an event of kind moves a user in status
// from to, and false when the event does not apply.
func NextStatus(from KYCStatus, kind EventKind) (KYCStatus, bool) {
	rule, ok := defaultTransitionRules[kind]
	if !ok {
		return from, false
	}
	if !rule.allows(from) {
		return from, false
	}
	return rule.to, true
}

// TransitionEngineOption customizes engine construction.
type TransitionEngineOption func(*TransitionEngine)

// WithTransitionClock injects a custom clock (useful for tests).
func WithTransitionClock(clock func() time.Time) TransitionEngineOption {
	return func(e *TransitionEngine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithTransitionLogger overrides the logger used for swallowed anomalies.
func WithTransitionLogger(logger Logger) TransitionEngineOption {
	return func(e *TransitionEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// TransitionEngine applies verification events to user records.
type TransitionEngine struct {
	users  Users
	rules  map[EventKind]transitionRule
	now    func() time.Time
	logger Logger
}

func NewTransitionEngine(users Users, opts ...TransitionEngineOption) *TransitionEngine {
	e := &TransitionEngine{
		users:  users,
		rules:  defaultTransitionRules,
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// ApplyTx looks up the user owning the event session and applies the
// precondition table with a single conditional write. Unknown sessions and
// violated preconditions are reported in the result, not as errors. It must
// only run for events the caller has claimed.
func (e *TransitionEngine) ApplyTx(ctx context.Context, tx bun.IDB, event *VerificationEvent) (*TransitionResult, error) {
	if event == nil {
		return nil, withMeta(ErrMalformedPayload, map[string]any{
			"reason": "event is nil",
		})
	}

	result := &TransitionResult{SessionID: event.SessionID}

	rule, ok := e.rules[event.Kind]
	if !ok {
		e.logger.Debug("ignoring unrecognized event type %q (event %s)", event.Type, event.EventID)
		result.Outcome = OutcomeIgnored
		return result, nil
	}

	user, err := e.users.FindBySessionIDTx(ctx, tx, event.SessionID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			e.logger.Warn("no user for session %s (event %s, type %s)", event.SessionID, event.EventID, event.Type)
			result.Outcome = OutcomeUnknownSession
			result.Err = withMeta(ErrUnknownSession, map[string]any{
				"event_id":   event.EventID,
				"session_id": event.SessionID,
			})
			return result, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user by session").
			WithMetadata(map[string]any{"session_id": event.SessionID})
	}

	user.EnsureStatus()
	result.UserID = user.ID
	result.From = user.KYCStatus
	result.To = user.KYCStatus

	if !rule.allows(user.KYCStatus) {
		e.logger.Info("event %s (%s) does not apply to user %s in status %s", event.EventID, event.Kind, user.ID, user.KYCStatus)
		result.Outcome = OutcomeNoop
		result.Err = withMeta(ErrInvalidTransition, map[string]any{
			"event_id": event.EventID,
			"from":     user.KYCStatus,
			"event":    event.Kind.String(),
		})
		return result, nil
	}

	now := e.now().UTC()
	applied, err := e.users.UpdateKYCTx(ctx, tx, user.ID, KYCUpdate{
		Status:          rule.to,
		ExpectSessionID: event.SessionID,
		From:            rule.from,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update kyc status").
			WithMetadata(map[string]any{
				"user_id":  user.ID.String(),
				"event_id": event.EventID,
			})
	}

	if !applied {
		// status or session changed between the read and the write
		e.logger.Info("event %s (%s) lost a concurrent update for user %s", event.EventID, event.Kind, user.ID)
		result.Outcome = OutcomeNoop
		result.Err = withMeta(ErrInvalidTransition, map[string]any{
			"event_id": event.EventID,
			"from":     user.KYCStatus,
			"event":    event.Kind.String(),
			"reason":   "concurrent update",
		})
		return result, nil
	}

	result.Outcome = OutcomeTransitioned
	result.To = rule.to

	return result, nil
}
