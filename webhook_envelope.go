package kyc

import (
	"bytes"
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// eventEnvelope is the subset of the provider event body the core reads.
type eventEnvelope struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Created  int64        `json:"created"`
	Livemode bool         `json:"livemode"`
	Data     envelopeData `json:"data"`
}

type envelopeData struct {
	Object envelopeObject `json:"object"`
}

type envelopeObject struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Status string `json:"status"`
}

func (e eventEnvelope) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.Type, validation.Required),
	)
}

// DecodeEvent parses an authenticated payload into a VerificationEvent.
// Recognized kinds must carry a session id.
func DecodeEvent(payload []byte) (*VerificationEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, withMeta(ErrMalformedPayload, map[string]any{
			"reason": "empty body",
		})
	}

	var env eventEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, withMeta(ErrMalformedPayload, map[string]any{
			"reason": "invalid json",
		})
	}

	if err := env.Validate(); err != nil {
		return nil, withMeta(ErrMalformedPayload, map[string]any{
			"reason": err.Error(),
		})
	}

	event := &VerificationEvent{
		EventID:   env.ID,
		Type:      env.Type,
		Kind:      ParseEventKind(env.Type),
		SessionID: env.Data.Object.ID,
		Livemode:  env.Livemode,
	}

	if env.Created > 0 {
		event.Created = time.Unix(env.Created, 0).UTC()
	}

	if event.Kind != EventKindUnrecognized && event.SessionID == "" {
		return nil, withMeta(ErrMalformedPayload, map[string]any{
			"reason":     "missing session id",
			"event_type": env.Type,
		})
	}

	return event, nil
}

// EventAuthenticator verifies signed provider deliveries.
type EventAuthenticator struct {
	tolerance time.Duration
}

// AuthenticatorOption customizes an EventAuthenticator.
type AuthenticatorOption func(*EventAuthenticator)

// WithTolerance overrides the freshness window.
func WithTolerance(tolerance time.Duration) AuthenticatorOption {
	return func(a *EventAuthenticator) {
		if tolerance > 0 {
			a.tolerance = tolerance
		}
	}
}

func NewEventAuthenticator(opts ...AuthenticatorOption) *EventAuthenticator {
	a := &EventAuthenticator{
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Tolerance returns the configured freshness window.
func (a *EventAuthenticator) Tolerance() time.Duration {
	return a.tolerance
}

// Authenticate checks the signature and freshness of payload and only then
// decodes it. The payload must be the raw request body.
func (a *EventAuthenticator) Authenticate(payload []byte, header string, secret []byte, now time.Time) (*VerificationEvent, error) {
	if _, err := VerifySignature(payload, header, secret, now, a.tolerance); err != nil {
		return nil, err
	}
	return DecodeEvent(payload)
}
