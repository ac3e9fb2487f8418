package kyc

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeProviderUnavailable = "KYC_PROVIDER_UNAVAILABLE"
	TextCodeAlreadyVerified     = "KYC_ALREADY_VERIFIED"
	TextCodeSignatureInvalid    = "KYC_SIGNATURE_INVALID"
	TextCodeTimestampStale      = "KYC_TIMESTAMP_STALE"
	TextCodeMalformedPayload    = "KYC_MALFORMED_PAYLOAD"
	TextCodeUnknownSession      = "KYC_UNKNOWN_SESSION"
	TextCodeInvalidTransition   = "KYC_INVALID_TRANSITION"
	TextCodeNotVerified         = "KYC_NOT_VERIFIED"
	TextCodeRateLimited         = "KYC_RATE_LIMITED"
	TextCodeUserNotFound        = "KYC_USER_NOT_FOUND"
	TextCodeUnauthenticated     = "KYC_UNAUTHENTICATED"
)

// ErrProviderUnavailable is returned when the identity provider call fails or
// times out. Callers may retry.
var ErrProviderUnavailable = goerrors.New("identity provider unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrAlreadyVerified is returned when a verified user asks for a new session.
var ErrAlreadyVerified = goerrors.New("user is already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrSignatureInvalid is returned when the webhook signature does not match.
var ErrSignatureInvalid = goerrors.New("invalid webhook signature", goerrors.CategoryAuth).
	WithTextCode(TextCodeSignatureInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrTimestampStale is returned when the signed timestamp is outside the tolerance.
var ErrTimestampStale = goerrors.New("webhook timestamp outside tolerance", goerrors.CategoryAuth).
	WithTextCode(TextCodeTimestampStale).
	WithCode(goerrors.CodeBadRequest)

// ErrMalformedPayload is returned when an authenticated body cannot be decoded.
var ErrMalformedPayload = goerrors.New("malformed webhook payload", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMalformedPayload).
	WithCode(goerrors.CodeBadRequest)

// ErrUnknownSession is returned when no user owns the event's session id.
var ErrUnknownSession = goerrors.New("unknown verification session", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUnknownSession).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidTransition is returned when the current status does not satisfy
// an event's precondition.
var ErrInvalidTransition = goerrors.New("invalid kyc status transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrNotVerified is returned by the verification gate.
var ErrNotVerified = goerrors.New("identity verification required", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotVerified).
	WithCode(http.StatusForbidden)

// ErrRateLimited is returned when a user starts sessions too often.
var ErrRateLimited = goerrors.New("too many verification attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(http.StatusTooManyRequests)

// ErrUserNotFound is returned when the authenticated user no longer exists.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(http.StatusUnauthorized)

// IsAuthenticationError reports whether err is one of the webhook
// authentication failures that must be rejected.
func IsAuthenticationError(err error) bool {
	return hasTextCode(err, TextCodeSignatureInvalid, TextCodeTimestampStale, TextCodeMalformedPayload)
}

// HasTextCode reports whether err carries the given go-errors text code.
func HasTextCode(err error, code string) bool {
	return hasTextCode(err, code)
}

func hasTextCode(err error, codes ...string) bool {
	for err != nil {
		if richErr, ok := err.(*goerrors.Error); ok {
			for _, code := range codes {
				if richErr.TextCode == code {
					return true
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// withMeta clones a sentinel so metadata never leaks between requests.
func withMeta(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(meta)
}
