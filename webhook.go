package kyc

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookResult is returned for every authenticated delivery.
type WebhookResult struct {
	EventID   string
	EventType string
	Claim     ClaimResult
	Outcome   TransitionOutcome
	UserID    uuid.UUID
	Status    KYCStatus
	// Anomaly carries a swallowed error such as ErrUnknownSession.
	Anomaly error
}

// Changed reports whether the delivery moved a user to a new status.
func (r *WebhookResult) Changed() bool {
	return r != nil && r.Outcome == OutcomeTransitioned
}

// WebhookOption customizes a WebhookProcessor.
type WebhookOption func(*WebhookProcessor)

// WithWebhookClock injects the clock used for freshness checks.
func WithWebhookClock(clock func() time.Time) WebhookOption {
	return func(p *WebhookProcessor) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithWebhookAuthenticator replaces the default EventAuthenticator.
func WithWebhookAuthenticator(a *EventAuthenticator) WebhookOption {
	return func(p *WebhookProcessor) {
		if a != nil {
			p.authenticator = a
		}
	}
}

// WithWebhookTransitionEngine replaces the default TransitionEngine.
func WithWebhookTransitionEngine(e *TransitionEngine) WebhookOption {
	return func(p *WebhookProcessor) {
		if e != nil {
			p.engine = e
		}
	}
}

// WithWebhookActivitySink sets the sink notified after each delivery commits.
func WithWebhookActivitySink(sink ActivitySink) WebhookOption {
	return func(p *WebhookProcessor) {
		p.activitySink = normalizeActivitySink(sink)
	}
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(logger Logger) WebhookOption {
	return func(p *WebhookProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WebhookProcessor runs a delivery through authentication, deduplication and
// the transition engine. Claim and transition share one transaction.
type WebhookProcessor struct {
	repo          RepositoryManager
	secret        []byte
	authenticator *EventAuthenticator
	engine        *TransitionEngine
	now           func() time.Time
	activitySink  ActivitySink
	logger        Logger
}

// NewWebhookProcessor builds a processor bound to a webhook secret.
func NewWebhookProcessor(repo RepositoryManager, secret []byte, opts ...WebhookOption) *WebhookProcessor {
	p := &WebhookProcessor{
		repo:          repo,
		secret:        append([]byte(nil), secret...),
		authenticator: NewEventAuthenticator(),
		now:           time.Now,
		activitySink:  noopActivitySink{},
		logger:        defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if p.engine == nil {
		p.engine = NewTransitionEngine(repo.Users(),
			WithTransitionClock(p.now),
			WithTransitionLogger(p.logger),
		)
	}

	return p
}

// Handle processes one delivery. Authentication failures are returned as
// errors and must be rejected. Every post-authentication anomaly yields a
// result and a nil error. Any other error means nothing was committed.
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	event, err := p.authenticator.Authenticate(payload, signatureHeader, p.secret, p.now())
	if err != nil {
		code := textCodeOf(err)
		p.logger.Warn("webhook rejected: %s", code)
		recordActivity(ctx, p.activitySink, p.logger, p.now, ActivityEvent{
			EventType: ActivityEventAuthFailure,
			Metadata:  map[string]any{"error": code},
		})
		return nil, err
	}

	result := &WebhookResult{
		EventID:   event.EventID,
		EventType: event.Type,
	}

	var transition *TransitionResult

	err = p.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		claim, err := p.repo.ProcessedEvents().ClaimTx(ctx, tx, event)
		if err != nil {
			return err
		}

		result.Claim = claim
		if claim == ClaimResultAlreadyProcessed {
			return nil
		}

		transition, err = p.engine.ApplyTx(ctx, tx, event)
		return err
	})

	if err != nil {
		p.logger.Error("webhook event %s failed: %v", event.EventID, err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to process webhook event")
	}

	if result.Claim == ClaimResultAlreadyProcessed {
		p.logger.Debug("duplicate delivery of event %s", event.EventID)
		result.Outcome = OutcomeDuplicate
		recordActivity(ctx, p.activitySink, p.logger, p.now, ActivityEvent{
			EventType: ActivityEventDuplicate,
			SessionID: event.SessionID,
			EventID:   event.EventID,
		})
		return result, nil
	}

	result.Outcome = transition.Outcome
	result.UserID = transition.UserID
	result.Status = transition.To
	result.Anomaly = transition.Err

	p.publishTransition(ctx, event, transition)

	return result, nil
}

func (p *WebhookProcessor) publishTransition(ctx context.Context, event *VerificationEvent, t *TransitionResult) {
	activity := ActivityEvent{
		SessionID: event.SessionID,
		EventID:   event.EventID,
		Metadata:  map[string]any{"event_type": event.Type},
	}

	if t.UserID != uuid.Nil {
		activity.UserID = t.UserID.String()
	}

	switch t.Outcome {
	case OutcomeTransitioned:
		activity.EventType = ActivityEventStatusChanged
		activity.FromStatus = t.From
		activity.ToStatus = t.To
	case OutcomeUnknownSession:
		activity.EventType = ActivityEventUnknownSession
	case OutcomeNoop:
		activity.EventType = ActivityEventTransitionNoop
		activity.FromStatus = t.From
	default:
		return
	}

	recordActivity(ctx, p.activitySink, p.logger, p.now, activity)
}

func textCodeOf(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return "UNKNOWN"
}
