package kyc

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// KYCStatus is the user's identity verification status
type KYCStatus string

const (
	// StatusUnverified no verification has been attempted
	StatusUnverified KYCStatus = "unverified"
	// StatusPending a provider session is open
	StatusPending KYCStatus = "pending"
	// StatusVerified the provider confirmed the identity. Absorbing.
	StatusVerified KYCStatus = "verified"
	// StatusFailed the provider needs more input, user may restart
	StatusFailed KYCStatus = "failed"
	// StatusCanceled the session was canceled, user may restart
	StatusCanceled KYCStatus = "canceled"
)

// AllStatuses lists every known status.
var AllStatuses = []KYCStatus{
	StatusUnverified,
	StatusPending,
	StatusVerified,
	StatusFailed,
	StatusCanceled,
}

// Valid reports whether s is a known status.
func (s KYCStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// User is the user model. The core only mutates KYCStatus,
// ProviderSessionID and UpdatedAt.
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	KYCStatus         KYCStatus  `bun:"kyc_status,notnull,default:'unverified'" json:"kyc_status"`
	ProviderSessionID *string    `bun:"provider_session_id,unique" json:"provider_session_id,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults an empty status to unverified.
func (u *User) EnsureStatus() {
	if u == nil {
		return
	}
	if u.KYCStatus == "" {
		u.KYCStatus = StatusUnverified
	}
}

func (u *User) IsVerified() bool {
	return u != nil && u.KYCStatus == StatusVerified
}

func (u *User) IsPending() bool {
	return u != nil && u.KYCStatus == StatusPending
}

// SessionID returns the provider session id or an empty string.
func (u *User) SessionID() string {
	if u == nil || u.ProviderSessionID == nil {
		return ""
	}
	return *u.ProviderSessionID
}

// ProcessedEvent records that a provider event id was claimed for processing.
// Rows are written once and never updated.
type ProcessedEvent struct {
	bun.BaseModel `bun:"table:kyc_processed_events,alias:kpe"`
	EventID       string    `bun:"event_id,pk" json:"event_id"`
	EventType     string    `bun:"event_type,notnull" json:"event_type"`
	ProcessedAt   time.Time `bun:"processed_at,notnull" json:"processed_at"`
}

// EventKind is the closed set of provider events the core acts on. Anything
// else decodes to EventKindUnrecognized and is ignored.
type EventKind int

const (
	EventKindUnrecognized EventKind = iota
	EventKindSessionVerified
	EventKindSessionRequiresInput
	EventKindSessionCanceled
)

const (
	EventTypeSessionVerified      = "session.verified"
	EventTypeSessionRequiresInput = "session.requires_input"
	EventTypeSessionCanceled      = "session.canceled"
)

// providerEventKinds maps provider event names to kinds. Stripe Identity
// prefixes session events with identity.verification_.
var providerEventKinds = map[string]EventKind{
	EventTypeSessionVerified:      EventKindSessionVerified,
	EventTypeSessionRequiresInput: EventKindSessionRequiresInput,
	EventTypeSessionCanceled:      EventKindSessionCanceled,

	"identity.verification_session.verified":       EventKindSessionVerified,
	"identity.verification_session.requires_input": EventKindSessionRequiresInput,
	"identity.verification_session.canceled":       EventKindSessionCanceled,
}

// ParseEventKind resolves a provider event type.
func ParseEventKind(eventType string) EventKind {
	if kind, ok := providerEventKinds[eventType]; ok {
		return kind
	}
	return EventKindUnrecognized
}

func (k EventKind) String() string {
	switch k {
	case EventKindSessionVerified:
		return EventTypeSessionVerified
	case EventKindSessionRequiresInput:
		return EventTypeSessionRequiresInput
	case EventKindSessionCanceled:
		return EventTypeSessionCanceled
	default:
		return "unrecognized"
	}
}

// VerificationEvent is an authenticated provider event. It is not persisted
// beyond its ProcessedEvent record.
type VerificationEvent struct {
	EventID   string
	Type      string
	Kind      EventKind
	SessionID string
	Created   time.Time
	Livemode  bool
}
