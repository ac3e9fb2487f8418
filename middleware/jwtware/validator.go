package jwtware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("invalid or expired token")

// Claims are the bearer token claims the KYC API reads. The user id comes
// from `uid` when present, else from `sub`.
type Claims struct {
	jwt.RegisteredClaims
	UID   string `json:"uid,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

func (c *Claims) UserEmail() string {
	if c == nil {
		return ""
	}
	return c.Email
}

// ValidatorOption customizes a ClaimsValidator.
type ValidatorOption func(*ClaimsValidator)

func WithIssuer(issuer string) ValidatorOption {
	return func(v *ClaimsValidator) {
		v.issuer = issuer
	}
}

func WithAudience(audience string) ValidatorOption {
	return func(v *ClaimsValidator) {
		v.audience = audience
	}
}

func WithLeeway(leeway time.Duration) ValidatorOption {
	return func(v *ClaimsValidator) {
		v.leeway = leeway
	}
}

// WithValidMethods restricts accepted signing algorithms.
func WithValidMethods(methods ...string) ValidatorOption {
	return func(v *ClaimsValidator) {
		v.methods = methods
	}
}

// ClaimsValidator parses and verifies tokens with a jwt.Keyfunc.
type ClaimsValidator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience string
	leeway   time.Duration
	methods  []string
}

var _ TokenValidator = (*ClaimsValidator)(nil)

func NewClaimsValidator(keyFunc jwt.Keyfunc, opts ...ValidatorOption) *ClaimsValidator {
	v := &ClaimsValidator{keyFunc: keyFunc}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func (v *ClaimsValidator) Validate(tokenString string) (AuthClaims, error) {
	if tokenString == "" {
		return nil, ErrJWTMissingOrMalformed
	}

	parserOpts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	if v.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(v.leeway))
	}
	if len(v.methods) > 0 {
		parserOpts = append(parserOpts, jwt.WithValidMethods(v.methods))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrJWTMissingOrMalformed
		}
		return nil, errors.Join(ErrTokenInvalid, err)
	}

	if !token.Valid || claims.UserID() == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
