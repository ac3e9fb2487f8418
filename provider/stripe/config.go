package stripe

import (
	"net/http"
	"strings"
	"time"
)

const (
	// SessionTypeDocument verifies an identity document.
	SessionTypeDocument = "document"

	DocumentTypeDrivingLicense = "driving_license"
	DocumentTypePassport       = "passport"
	DocumentTypeIDCard         = "id_card"
)

// Config configures the Stripe Identity provider.
type Config struct {
	// SecretKey is the Stripe API secret key.
	SecretKey string

	// APIURL overrides the Stripe API base URL (tests, proxies).
	APIURL string

	// Timeout bounds each HTTP request to Stripe.
	// Default: 10 seconds.
	Timeout time.Duration

	// AllowedDocumentTypes restricts accepted documents.
	// Default: driving licence, passport and id card.
	AllowedDocumentTypes []string

	// RequireLiveCapture forces camera capture instead of uploads.
	RequireLiveCapture bool

	// HTTPClient overrides the client used for API calls. Timeout is ignored
	// when set.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(secretKey string) Config {
	return Config{
		SecretKey: secretKey,
		Timeout:   10 * time.Second,
		AllowedDocumentTypes: []string{
			DocumentTypeDrivingLicense,
			DocumentTypePassport,
			DocumentTypeIDCard,
		},
	}
}

func (c Config) normalized() Config {
	defaults := DefaultConfig(c.SecretKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.APIURL = strings.TrimSuffix(strings.TrimSpace(c.APIURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if len(c.AllowedDocumentTypes) == 0 {
		c.AllowedDocumentTypes = defaults.AllowedDocumentTypes
	}
	return c
}
