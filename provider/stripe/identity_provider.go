package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/identity/verificationsession"

	"github.com/goliatone/go-kyc"
)

// IdentityProvider implements kyc.IdentityProvider backed by Stripe Identity.
type IdentityProvider struct {
	config Config
	client verificationsession.Client
}

var _ kyc.IdentityProvider = (*IdentityProvider)(nil)

// NewIdentityProvider creates a Stripe Identity provider. The backend is
// private to the provider so the global stripe.Key is never touched.
func NewIdentityProvider(cfg Config) (*IdentityProvider, error) {
	cfg = cfg.normalized()
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	backendCfg := &stripego.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripego.String(cfg.APIURL)
	}

	return &IdentityProvider{
		config: cfg,
		client: verificationsession.Client{
			B:   stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
	}, nil
}

// CreateSession opens a document verification session for the user.
func (p *IdentityProvider) CreateSession(ctx context.Context, req kyc.SessionRequest) (*kyc.ProviderSession, error) {
	params := &stripego.IdentityVerificationSessionParams{
		Type: stripego.String(SessionTypeDocument),
		Options: &stripego.IdentityVerificationSessionOptionsParams{
			Document: &stripego.IdentityVerificationSessionOptionsDocumentParams{
				AllowedTypes:       stripego.StringSlice(p.config.AllowedDocumentTypes),
				RequireLiveCapture: stripego.Bool(p.config.RequireLiveCapture),
			},
		},
	}
	params.Context = ctx

	if req.ReturnURL != "" {
		params.ReturnURL = stripego.String(req.ReturnURL)
	}

	params.AddMetadata("user_id", req.UserID.String())
	if req.Email != "" {
		params.AddMetadata("user_email", req.Email)
	}

	session, err := p.client.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create verification session: %w", err)
	}

	return &kyc.ProviderSession{
		SessionID: session.ID,
		HostedURL: session.URL,
	}, nil
}
