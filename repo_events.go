package kyc

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ProcessedEvents stores claimed provider event ids.
type ProcessedEvents interface {
	EventDeduplicator

	Claim(ctx context.Context, event *VerificationEvent) (ClaimResult, error)
	Exists(ctx context.Context, eventID string) (bool, error)
	ExistsTx(ctx context.Context, tx bun.IDB, eventID string) (bool, error)
	Count(ctx context.Context) (int, error)
}

type processedEvents struct {
	db  *bun.DB
	now func() time.Time
}

var _ ProcessedEvents = (*processedEvents)(nil)

type ProcessedEventsOption func(*processedEvents)

// WithProcessedEventsClock sets the clock stamped on claimed records.
func WithProcessedEventsClock(clock func() time.Time) ProcessedEventsOption {
	return func(p *processedEvents) {
		if clock != nil {
			p.now = clock
		}
	}
}

func NewProcessedEventsRepository(db *bun.DB, opts ...ProcessedEventsOption) ProcessedEvents {
	repo := &processedEvents{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (p *processedEvents) Claim(ctx context.Context, event *VerificationEvent) (ClaimResult, error) {
	return p.ClaimTx(ctx, p.db, event)
}

// ClaimTx inserts the event id unless it already exists. The unique key on
// event_id makes concurrent claims of the same id resolve to one winner.
func (p *processedEvents) ClaimTx(ctx context.Context, tx bun.IDB, event *VerificationEvent) (ClaimResult, error) {
	if event == nil || event.EventID == "" {
		return 0, withMeta(ErrMalformedPayload, map[string]any{
			"reason": "missing event id",
		})
	}

	record := &ProcessedEvent{
		EventID:     event.EventID,
		EventType:   event.Type,
		ProcessedAt: p.now().UTC(),
	}

	res, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to claim event").
			WithMetadata(map[string]any{"event_id": event.EventID})
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read claim result")
	}

	if affected == 0 {
		return ClaimResultAlreadyProcessed, nil
	}

	return ClaimResultClaimed, nil
}

func (p *processedEvents) Exists(ctx context.Context, eventID string) (bool, error) {
	return p.ExistsTx(ctx, p.db, eventID)
}

func (p *processedEvents) ExistsTx(ctx context.Context, tx bun.IDB, eventID string) (bool, error) {
	return tx.NewSelect().
		Model((*ProcessedEvent)(nil)).
		Where("?TableAlias.event_id = ?", eventID).
		Exists(ctx)
}

func (p *processedEvents) Count(ctx context.Context) (int, error) {
	return p.db.NewSelect().
		Model((*ProcessedEvent)(nil)).
		Count(ctx)
}
