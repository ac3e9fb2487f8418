package kyc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-kyc"
)

func TestDecodeEventRecognizedKinds(t *testing.T) {
	cases := map[string]kyc.EventKind{
		"identity.verification_session.verified":       kyc.EventKindSessionVerified,
		"identity.verification_session.requires_input": kyc.EventKindSessionRequiresInput,
		"identity.verification_session.canceled":       kyc.EventKindSessionCanceled,
		kyc.EventTypeSessionVerified:                   kyc.EventKindSessionVerified,
	}

	for eventType, kind := range cases {
		event, err := kyc.DecodeEvent(eventPayload("evt_1", eventType, "vs_1"))
		require.NoError(t, err, eventType)
		assert.Equal(t, kind, event.Kind, eventType)
		assert.Equal(t, "evt_1", event.EventID)
		assert.Equal(t, "vs_1", event.SessionID)
		assert.Equal(t, eventType, event.Type)
		assert.True(t, event.Created.Equal(testNow))
	}
}

func TestDecodeEventUnrecognizedKindNeedsNoSession(t *testing.T) {
	event, err := kyc.DecodeEvent([]byte(`{"id":"evt_9","type":"identity.verification_session.processing","data":{"object":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, kyc.EventKindUnrecognized, event.Kind)
	assert.Equal(t, "unrecognized", event.Kind.String())
}

func TestDecodeEventMalformed(t *testing.T) {
	cases := map[string]string{
		"empty body":         "   ",
		"invalid json":       `{"id":`,
		"missing id":         `{"type":"identity.verification_session.verified","data":{"object":{"id":"vs_1"}}}`,
		"missing type":       `{"id":"evt_1","data":{"object":{"id":"vs_1"}}}`,
		"missing session id": `{"id":"evt_1","type":"identity.verification_session.verified","data":{"object":{}}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := kyc.DecodeEvent([]byte(body))
			require.Error(t, err)
			assert.True(t, kyc.HasTextCode(err, kyc.TextCodeMalformedPayload))
		})
	}
}

func TestEventAuthenticatorVerifiesBeforeDecoding(t *testing.T) {
	auth := kyc.NewEventAuthenticator(kyc.WithTolerance(time.Minute))
	assert.Equal(t, time.Minute, auth.Tolerance())

	garbage := []byte("not json at all")
	_, err := auth.Authenticate(garbage, kyc.SignPayload(garbage, []byte("other"), testNow), testSecret, testNow)
	require.Error(t, err)
	assert.True(t, kyc.HasTextCode(err, kyc.TextCodeSignatureInvalid), "unsigned garbage is a signature failure, not a parse failure")

	_, err = auth.Authenticate(garbage, signedHeader(garbage), testSecret, testNow)
	require.Error(t, err)
	assert.True(t, kyc.HasTextCode(err, kyc.TextCodeMalformedPayload))

	payload := eventPayload("evt_1", "identity.verification_session.verified", "vs_1")
	event, err := auth.Authenticate(payload, signedHeader(payload), testSecret, testNow)
	require.NoError(t, err)
	assert.Equal(t, kyc.EventKindSessionVerified, event.Kind)
}

func TestEventAuthenticatorIgnoresNonPositiveTolerance(t *testing.T) {
	auth := kyc.NewEventAuthenticator(kyc.WithTolerance(-time.Second))
	assert.Equal(t, kyc.DefaultTolerance, auth.Tolerance())
}
