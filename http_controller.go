package kyc

import (
	"net/http"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultSignatureHeader is the header carrying the webhook signature.
const DefaultSignatureHeader = "Stripe-Signature"

type KYCControllerRoutes struct {
	Health       string
	Me           string
	Start        string
	Status       string
	Webhook      string
	VerifiedOnly string
}

type KYCController struct {
	Debug           bool
	Logger          Logger
	Repo            RepositoryManager
	Routes          *KYCControllerRoutes
	Starter         *StartVerificationHandler
	Webhooks        *WebhookProcessor
	ReturnURLs      *ReturnURLResolver
	Bearer          router.MiddlewareFunc
	ClaimsKey       string
	SignatureHeader string
}

type KYCControllerOption func(*KYCController) *KYCController

func WithControllerDebug(debug bool) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		k.Debug = debug
		return k
	}
}

func WithControllerLogger(logger Logger) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		if logger != nil {
			k.Logger = logger
		}
		return k
	}
}

func WithControllerRepository(repo RepositoryManager) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		k.Repo = repo
		return k
	}
}

func WithControllerStarter(h *StartVerificationHandler) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		k.Starter = h
		return k
	}
}

func WithControllerWebhooks(p *WebhookProcessor) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		k.Webhooks = p
		return k
	}
}

func WithControllerReturnURLs(r *ReturnURLResolver) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		k.ReturnURLs = r
		return k
	}
}

// WithControllerBearer sets the middleware authenticating bearer requests and
// the Locals key it stores claims under.
func WithControllerBearer(bearer router.MiddlewareFunc, claimsKey string) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		k.Bearer = bearer
		if claimsKey != "" {
			k.ClaimsKey = claimsKey
		}
		return k
	}
}

func WithControllerSignatureHeader(header string) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		if header != "" {
			k.SignatureHeader = header
		}
		return k
	}
}

func WithControllerRoutes(routes *KYCControllerRoutes) KYCControllerOption {
	return func(k *KYCController) *KYCController {
		if routes != nil {
			k.Routes = routes
		}
		return k
	}
}

func NewKYCController(opts ...KYCControllerOption) *KYCController {
	c := &KYCController{
		Logger:          defLogger{},
		ClaimsKey:       "user",
		SignatureHeader: DefaultSignatureHeader,
		Routes: &KYCControllerRoutes{
			Health:       "/health",
			Me:           "/me",
			Start:        "/kyc/start",
			Status:       "/kyc/status",
			Webhook:      "/webhooks/stripe",
			VerifiedOnly: "/kyc/verified-only",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in kyc controller...")
	}

	if c.Starter == nil {
		panic("Missing StartVerificationHandler in kyc controller...")
	}

	if c.Webhooks == nil {
		panic("Missing WebhookProcessor in kyc controller...")
	}

	if c.Bearer == nil {
		panic("Missing bearer middleware in kyc controller...")
	}

	return c
}

// RegisterKYCRoutes mounts the KYC endpoints on app.
func RegisterKYCRoutes[T any](app router.Router[T], opts ...KYCControllerOption) *KYCController {
	controller := NewKYCController(opts...)

	users := controller.Repo.Users()

	// bearer always runs before the user is loaded
	authenticated := chain(controller.Bearer, CurrentUserLoader(users, controller.ClaimsKey, controller.Logger))
	verified := chain(controller.Bearer, VerificationGate(users, GateConfig{
		ClaimsKey: controller.ClaimsKey,
		Logger:    controller.Logger,
	}))

	app.Get(controller.Routes.Health, controller.Health).
		SetName("health.get")

	app.Get(controller.Routes.Me, controller.Me, authenticated).
		SetName("me.get")

	app.Post(controller.Routes.Start, controller.StartVerification, authenticated).
		SetName("kyc-start.post")

	app.Get(controller.Routes.Status, controller.Status, authenticated).
		SetName("kyc-status.get")

	app.Post(controller.Routes.Webhook, controller.Webhook).
		SetName("kyc-webhook.post")

	app.Get(controller.Routes.VerifiedOnly, controller.VerifiedOnly, verified).
		SetName("kyc-verified-only.get")

	return controller
}

// chain runs the middlewares in order, first outermost.
func chain(mws ...router.MiddlewareFunc) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

func (k *KYCController) Health(ctx router.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

type UserProfileResponse struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	KYCStatus KYCStatus  `json:"kyc_status"`
	SessionID string     `json:"session_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (k *KYCController) Me(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated, k.Logger)
	}

	return ctx.JSON(http.StatusOK, UserProfileResponse{
		UserID:    user.ID.String(),
		Email:     user.Email,
		KYCStatus: user.KYCStatus,
		SessionID: user.SessionID(),
		CreatedAt: user.CreatedAt,
	})
}

func (k *KYCController) StartVerification(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated, k.Logger)
	}

	returnURL := ""
	if k.ReturnURLs != nil {
		returnURL = k.ReturnURLs.Resolve(ctx.Header("Origin"), ctx.Referer())
	}

	var resp *StartVerificationResponse
	err := k.Starter.Execute(ctx.Context(), StartVerificationMessage{
		UserID:    user.ID,
		ReturnURL: returnURL,
		OnResponse: func(r *StartVerificationResponse) {
			resp = r
		},
	})

	if err != nil {
		return RenderError(ctx, err, k.Logger)
	}

	if k.Debug {
		k.Logger.Debug("verification started: %s", print.MaybePrettyJSON(resp))
	}

	return ctx.JSON(http.StatusOK, resp)
}

type StatusResponse struct {
	KYCStatus         KYCStatus  `json:"kyc_status"`
	ProviderSessionID string     `json:"provider_session_id,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

func (k *KYCController) Status(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated, k.Logger)
	}

	return ctx.JSON(http.StatusOK, StatusResponse{
		KYCStatus:         user.KYCStatus,
		ProviderSessionID: user.SessionID(),
		UpdatedAt:         user.UpdatedAt,
	})
}

type WebhookResponse struct {
	Received  bool              `json:"received"`
	Outcome   TransitionOutcome `json:"outcome"`
	EventID   string            `json:"event_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	KYCStatus KYCStatus         `json:"kyc_status,omitempty"`
}

// Webhook authenticates the raw body before anything parses it.
func (k *KYCController) Webhook(ctx router.Context) error {
	// the transport may reuse the request buffer once the handler returns
	payload := append([]byte(nil), ctx.Body()...)
	signature := ctx.Header(k.SignatureHeader)

	result, err := k.Webhooks.Handle(ctx.Context(), payload, signature)
	if err != nil {
		return RenderError(ctx, err, k.Logger)
	}

	if k.Debug {
		k.Logger.Debug("webhook processed: %s", print.MaybePrettyJSON(result))
	}

	resp := WebhookResponse{
		Received: true,
		Outcome:  result.Outcome,
		EventID:  result.EventID,
	}

	if result.Changed() {
		resp.UserID = result.UserID.String()
		resp.KYCStatus = result.Status
	}

	return ctx.JSON(http.StatusOK, resp)
}

type VerifiedOnlyResponse struct {
	Message   string    `json:"message"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	KYCStatus KYCStatus `json:"kyc_status"`
	SessionID string    `json:"session_id,omitempty"`
}

func (k *KYCController) VerifiedOnly(ctx router.Context) error {
	user, ok := CurrentUser(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated, k.Logger)
	}

	return ctx.JSON(http.StatusOK, VerifiedOnlyResponse{
		Message:   "Success! You are a verified user.",
		UserID:    user.ID.String(),
		Email:     user.Email,
		KYCStatus: user.KYCStatus,
		SessionID: user.SessionID(),
	})
}
