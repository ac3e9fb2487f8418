package kyc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-kyc/middleware/jwtware"
)

// ErrorResponse is the JSON body rendered for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BearerConfig configures bearer token validation for protected routes.
type BearerConfig struct {
	SigningKey    string
	SigningMethod string
	JWKSetURLs    []string
	Issuer        string
	Audience      string
	TokenLookup   string
	AuthScheme    string
	ContextKey    string
}

// ProtectedRoute returns middleware that rejects requests without a valid
// bearer token. Claims are stored under cfg.ContextKey.
func ProtectedRoute(cfg BearerConfig, errorHandler router.ErrorHandler) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = func(ctx router.Context, err error) error {
			return RenderError(ctx, withMeta(ErrUnauthenticated, map[string]any{
				"reason": err.Error(),
			}), nil)
		}
	}

	jwtCfg := jwtware.Config{
		ErrorHandler: errorHandler,
		AuthScheme:   cfg.AuthScheme,
		ContextKey:   cfg.ContextKey,
		TokenLookup:  cfg.TokenLookup,
		JWKSetURLs:   cfg.JWKSetURLs,
		ValidatorOptions: []jwtware.ValidatorOption{
			jwtware.WithIssuer(cfg.Issuer),
			jwtware.WithAudience(cfg.Audience),
		},
	}

	if cfg.SigningKey != "" {
		alg := cfg.SigningMethod
		if alg == "" {
			alg = "HS256"
		}
		jwtCfg.SigningKey = jwtware.SigningKey{
			Key:    []byte(cfg.SigningKey),
			JWTAlg: alg,
		}
		if len(cfg.JWKSetURLs) == 0 {
			jwtCfg.ValidatorOptions = append(jwtCfg.ValidatorOptions, jwtware.WithValidMethods(alg))
		}
	}

	return jwtware.New(jwtCfg)
}

// NewErrorHandler returns a fiber error handler rendering ErrorResponse. It
// covers what never reaches a route handler, such as unknown routes.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := errorResponse(c.Method(), c.OriginalURL(), err, logger)
		return c.Status(status).JSON(body)
	}
}

// RenderError writes err as JSON using the go-errors code and text code.
// Server errors hide their message.
func RenderError(ctx router.Context, err error, logger Logger) error {
	status, body := errorResponse(ctx.Method(), ctx.OriginalURL(), err, logger)
	return ctx.JSON(status, body)
}

func errorResponse(method, url string, err error, logger Logger) (int, ErrorResponse) {
	logger = normalizeLogger(logger)

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, ErrorResponse{
			Error:   http.StatusText(fiberErr.Code),
			Message: fiberErr.Message,
		}
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := ErrorResponse{
		Error:   richErr.TextCode,
		Message: richErr.Message,
	}

	if body.Error == "" {
		body.Error = fmt.Sprint(richErr.Category)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request %s %s failed: %v details=%s", method, url, err, print.MaybePrettyJSON(richErr.Metadata))
		body.Message = "An unexpected server error occurred"
	} else {
		logger.Debug("request %s %s rejected: %s details=%s", method, url, richErr.TextCode, print.MaybePrettyJSON(richErr.Metadata))
	}

	return status, body
}
