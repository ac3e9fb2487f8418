package kyc

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	"github.com/goliatone/go-kyc/middleware/jwtware"
)

// CurrentUserKey is the Locals key holding the user loaded for the request.
const CurrentUserKey = "kyc_current_user"

// RequireVerified fails with ErrNotVerified unless the user is verified.
func RequireVerified(user *User) error {
	if user.IsVerified() {
		return nil
	}

	status := StatusUnverified
	if user != nil && user.KYCStatus != "" {
		status = user.KYCStatus
	}

	return withMeta(ErrNotVerified, map[string]any{
		"kyc_status": status,
	})
}

// LoadCurrentUser resolves the authenticated user from the bearer claims
// stored under claimsKey and reads it from storage.
func LoadCurrentUser(ctx router.Context, users Users, claimsKey string) (*User, error) {
	claims, ok := jwtware.ClaimsFromContext(ctx, claimsKey)
	if !ok {
		return nil, withMeta(ErrUnauthenticated, map[string]any{
			"reason": "missing claims",
		})
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, withMeta(ErrUnauthenticated, map[string]any{
			"reason": "invalid user id claim",
		})
	}

	user, err := users.GetByID(ctx.Context(), id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, withMeta(ErrUserNotFound, map[string]any{"user_id": id.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load current user")
	}

	user.EnsureStatus()
	return user, nil
}

// CurrentUser returns the user stored by VerificationGate or CurrentUserLoader.
func CurrentUser(ctx router.Context) (*User, bool) {
	user, ok := ctx.Locals(CurrentUserKey).(*User)
	return user, ok && user != nil
}

// GateConfig configures VerificationGate.
type GateConfig struct {
	// ClaimsKey is the Locals key the bearer middleware stores claims under.
	ClaimsKey    string
	ErrorHandler router.ErrorHandler
	Logger       Logger
}

// VerificationGate reloads the user on every request and denies access with
// 403 unless the persisted status is verified.
func VerificationGate(users Users, config ...GateConfig) router.MiddlewareFunc {
	var cfg GateConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := normalizeLogger(cfg.Logger)

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			if !HasTextCode(err, TextCodeNotVerified) {
				return RenderError(ctx, err, logger)
			}
			status := StatusUnverified
			if user, ok := CurrentUser(ctx); ok {
				status = user.KYCStatus
			}
			return ctx.JSON(http.StatusForbidden, map[string]any{
				"error":      "kyc_verification_required",
				"message":    "This operation requires identity verification",
				"kyc_status": status,
				"action":     "Complete KYC verification to access this resource",
			})
		}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			user, err := LoadCurrentUser(ctx, users, cfg.ClaimsKey)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(CurrentUserKey, user)

			if err := RequireVerified(user); err != nil {
				logger.Debug("verification gate denied user %s in status %s", user.ID, user.KYCStatus)
				return cfg.ErrorHandler(ctx, err)
			}

			return next(ctx)
		}
	}
}

// CurrentUserLoader loads the authenticated user into Locals without gating.
func CurrentUserLoader(users Users, claimsKey string, logger Logger) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			user, err := LoadCurrentUser(ctx, users, claimsKey)
			if err != nil {
				return RenderError(ctx, err, logger)
			}
			ctx.Locals(CurrentUserKey, user)
			return next(ctx)
		}
	}
}
