package kyc

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// DefaultProviderTimeout bounds the outbound session request.
const DefaultProviderTimeout = 10 * time.Second

// restartableStatuses may open a new session. Pending re-initiation replaces
// the previous session id.
var restartableStatuses = []KYCStatus{StatusUnverified, StatusPending, StatusFailed, StatusCanceled}

type StartVerificationMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	ReturnURL  string    `json:"return_url"`
	OnResponse func(resp *StartVerificationResponse)
}

func (m StartVerificationMessage) Type() string { return "kyc.verification.start" }

func (m StartVerificationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.UserID, validation.By(func(value any) error {
			if id, _ := value.(uuid.UUID); id == uuid.Nil {
				return errors.New("cannot be blank")
			}
			return nil
		})),
	)
}

type StartVerificationResponse struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	Status    KYCStatus `json:"kyc_status"`
}

// StartVerificationOption customizes the handler.
type StartVerificationOption func(*StartVerificationHandler)

// WithProviderTimeout overrides the outbound call timeout.
func WithProviderTimeout(timeout time.Duration) StartVerificationOption {
	return func(h *StartVerificationHandler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithStartLimiter throttles session creation per user.
func WithStartLimiter(limiter StartLimiter) StartVerificationOption {
	return func(h *StartVerificationHandler) {
		h.limiter = limiter
	}
}

func WithStartClock(clock func() time.Time) StartVerificationOption {
	return func(h *StartVerificationHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

func WithStartActivitySink(sink ActivitySink) StartVerificationOption {
	return func(h *StartVerificationHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

func WithStartLogger(logger Logger) StartVerificationOption {
	return func(h *StartVerificationHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// StartVerificationHandler opens a provider session for a user and moves
// the user to pending. It never retries the provider call.
type StartVerificationHandler struct {
	repo         RepositoryManager
	provider     IdentityProvider
	limiter      StartLimiter
	timeout      time.Duration
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func NewStartVerificationHandler(repo RepositoryManager, provider IdentityProvider, opts ...StartVerificationOption) *StartVerificationHandler {
	h := &StartVerificationHandler{
		repo:         repo,
		provider:     provider,
		timeout:      DefaultProviderTimeout,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *StartVerificationHandler) Execute(ctx context.Context, event StartVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification start",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *StartVerificationHandler) execute(ctx context.Context, event StartVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid verification start request")
	}

	if err := h.checkLimit(ctx, event.UserID); err != nil {
		return err
	}

	user, err := h.loadUser(ctx, event.UserID)
	if err != nil {
		return err
	}

	if user.IsVerified() {
		return withMeta(ErrAlreadyVerified, map[string]any{
			"user_id":    user.ID.String(),
			"kyc_status": user.KYCStatus,
		})
	}

	session, err := h.createSession(ctx, user, event.ReturnURL)
	if err != nil {
		return err
	}

	sessionID := session.SessionID
	applied, err := h.repo.Users().UpdateKYC(ctx, user.ID, KYCUpdate{
		Status:    StatusPending,
		SessionID: &sessionID,
		From:      restartableStatuses,
		UpdatedAt: h.now().UTC(),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification session").
			WithMetadata(map[string]any{"user_id": user.ID.String()})
	}

	if !applied {
		return h.resolveLostUpdate(ctx, user.ID)
	}

	h.logger.Info("verification session %s started for user %s", sessionID, user.ID)

	recordActivity(ctx, h.activitySink, h.logger, h.now, ActivityEvent{
		EventType:  ActivityEventSessionStarted,
		UserID:     user.ID.String(),
		SessionID:  sessionID,
		FromStatus: user.KYCStatus,
		ToStatus:   StatusPending,
	})

	if event.OnResponse != nil {
		event.OnResponse(&StartVerificationResponse{
			URL:       session.HostedURL,
			SessionID: sessionID,
			Status:    StatusPending,
		})
	}

	return nil
}

func (h *StartVerificationHandler) checkLimit(ctx context.Context, userID uuid.UUID) error {
	if h.limiter == nil {
		return nil
	}

	allowed, retryAfter, err := h.limiter.Allow(ctx, userID)
	if err != nil {
		h.logger.Warn("start limiter unavailable, allowing request: %v", err)
		return nil
	}

	if !allowed {
		return withMeta(ErrRateLimited, map[string]any{
			"user_id":     userID.String(),
			"retry_after": retryAfter.String(),
		})
	}

	return nil
}

func (h *StartVerificationHandler) loadUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := h.repo.Users().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withMeta(ErrUserNotFound, map[string]any{"user_id": id.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}
	user.EnsureStatus()
	return user, nil
}

func (h *StartVerificationHandler) createSession(ctx context.Context, user *User, returnURL string) (*ProviderSession, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	session, err := h.provider.CreateSession(ctx, SessionRequest{
		UserID:    user.ID,
		Email:     user.Email,
		ReturnURL: returnURL,
	})
	if err != nil {
		h.logger.Error("identity provider session request failed for user %s: %v", user.ID, err)
		return nil, withMeta(ErrProviderUnavailable, map[string]any{
			"user_id": user.ID.String(),
			"cause":   err.Error(),
		})
	}

	if session == nil || session.SessionID == "" || session.HostedURL == "" {
		return nil, withMeta(ErrProviderUnavailable, map[string]any{
			"user_id": user.ID.String(),
			"cause":   "provider returned an incomplete session",
		})
	}

	return session, nil
}

// resolveLostUpdate explains why the conditional write matched nothing.
func (h *StartVerificationHandler) resolveLostUpdate(ctx context.Context, id uuid.UUID) error {
	current, err := h.loadUser(ctx, id)
	if err != nil {
		return err
	}

	if current.IsVerified() {
		return withMeta(ErrAlreadyVerified, map[string]any{
			"user_id":    id.String(),
			"kyc_status": current.KYCStatus,
		})
	}

	return goerrors.New("verification session was not stored", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"user_id":    id.String(),
			"kyc_status": current.KYCStatus,
		})
}
