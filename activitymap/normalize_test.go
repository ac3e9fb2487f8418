package activitymap_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-kyc"
	"github.com/goliatone/go-kyc/activitymap"
)

func TestNormalizeStatusChange(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := kyc.ActivityEvent{
		EventType:  kyc.ActivityEventStatusChanged,
		UserID:     "user-100",
		SessionID:  "vs_100",
		EventID:    "evt_1",
		FromStatus: kyc.StatusPending,
		ToStatus:   kyc.StatusVerified,
		Metadata: map[string]any{
			"event_type": "identity.verification_session.verified",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(kyc.ActivityEventStatusChanged) {
		t.Fatalf("expected verb %q, got %q", kyc.ActivityEventStatusChanged, out.Verb)
	}
	if out.ObjectType != "verification_session" {
		t.Fatalf("expected object_type verification_session, got %q", out.ObjectType)
	}
	if out.ObjectID != "vs_100" {
		t.Fatalf("expected object_id vs_100, got %q", out.ObjectID)
	}
	if out.Channel != "kyc" {
		t.Fatalf("expected channel kyc, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata[activitymap.MetadataKeyFromStatus] != "pending" {
		t.Fatalf("expected from_status pending, got %#v", out.Metadata[activitymap.MetadataKeyFromStatus])
	}
	if out.Metadata[activitymap.MetadataKeyToStatus] != "verified" {
		t.Fatalf("expected to_status verified, got %#v", out.Metadata[activitymap.MetadataKeyToStatus])
	}
	if out.Metadata[activitymap.MetadataKeyProviderEventID] != "evt_1" {
		t.Fatalf("expected provider_event_id evt_1, got %#v", out.Metadata[activitymap.MetadataKeyProviderEventID])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := kyc.ActivityEvent{
		EventType: kyc.ActivityEventAuthFailure,
		Metadata: map[string]any{
			"error": kyc.TextCodeSignatureInvalid,
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("webhook"),
		activitymap.WithObjectIDResolver(func(e kyc.ActivityEvent) string {
			if v, ok := e.Metadata["error"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "webhook" {
		t.Fatalf("expected object_type webhook, got %q", out.ObjectType)
	}
	if out.ObjectID != kyc.TextCodeSignatureInvalid {
		t.Fatalf("expected object_id %s, got %q", kyc.TextCodeSignatureInvalid, out.ObjectID)
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeObjectAndActorFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		event        kyc.ActivityEvent
		opts         []activitymap.Option
		expectActor  string
		expectObject string
	}{
		{
			name:         "user and session present",
			event:        kyc.ActivityEvent{UserID: "user-1", SessionID: "vs_1"},
			expectActor:  "user-1",
			expectObject: "vs_1",
		},
		{
			name:         "session without user",
			event:        kyc.ActivityEvent{SessionID: "vs_2"},
			expectActor:  "identity_provider",
			expectObject: "vs_2",
		},
		{
			name:         "user without session",
			event:        kyc.ActivityEvent{UserID: "user-3"},
			expectActor:  "user-3",
			expectObject: "user-3",
		},
		{
			name:        "configured fallback",
			event:       kyc.ActivityEvent{},
			opts:        []activitymap.Option{activitymap.WithActorFallback("stripe")},
			expectActor: "stripe",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expectActor {
				t.Fatalf("expected actor_id %q, got %q", tc.expectActor, out.ActorID)
			}
			if out.ObjectID != tc.expectObject {
				t.Fatalf("expected object_id %q, got %q", tc.expectObject, out.ObjectID)
			}
		})
	}
}
