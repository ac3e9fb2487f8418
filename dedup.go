package kyc

import (
	"context"

	"github.com/uptrace/bun"
)

// ClaimResult is the outcome of claiming an event id.
type ClaimResult int

const (
	// ClaimResultClaimed the caller owns the event and must process it.
	ClaimResultClaimed ClaimResult = iota + 1
	// ClaimResultAlreadyProcessed another delivery claimed the id first.
	ClaimResultAlreadyProcessed
)

func (r ClaimResult) String() string {
	switch r {
	case ClaimResultClaimed:
		return "claimed"
	case ClaimResultAlreadyProcessed:
		return "already_processed"
	default:
		return "unknown"
	}
}

// EventDeduplicator records provider event ids so each one is processed once.
// ClaimTx must be a single atomic insert-if-absent.
type EventDeduplicator interface {
	ClaimTx(ctx context.Context, tx bun.IDB, event *VerificationEvent) (ClaimResult, error)
}
