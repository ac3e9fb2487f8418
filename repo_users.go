package kyc

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// KYCUpdate describes a conditional write of the verification fields.
type KYCUpdate struct {
	Status KYCStatus
	// SessionID replaces provider_session_id when set.
	SessionID *string
	// ExpectSessionID restricts the write to the row owning this session.
	ExpectSessionID string
	// From lists the statuses the row must currently hold. Empty means any.
	From      []KYCStatus
	UpdatedAt time.Time
}

type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	FindBySessionID(ctx context.Context, sessionID string) (*User, error)
	FindBySessionIDTx(ctx context.Context, tx bun.IDB, sessionID string) (*User, error)
	UpdateKYC(ctx context.Context, id uuid.UUID, update KYCUpdate) (bool, error)
	UpdateKYCTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update KYCUpdate) (bool, error)
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock sets the clock used when an update carries no timestamp.
func WithUsersClock(clock func() time.Time) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	a.prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) FindBySessionID(ctx context.Context, sessionID string) (*User, error) {
	return a.FindBySessionIDTx(ctx, a.db, sessionID)
}

func (a *users) FindBySessionIDTx(ctx context.Context, tx bun.IDB, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, recordNotFound("provider_session_id", sessionID)
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider_session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, recordNotFound("provider_session_id", sessionID)
		}
		return nil, err
	}

	return record, nil
}

func (a *users) UpdateKYC(ctx context.Context, id uuid.UUID, update KYCUpdate) (bool, error) {
	return a.UpdateKYCTx(ctx, a.db, id, update)
}

// UpdateKYCTx writes status, updated_at and optionally the session id in a
// single statement guarded by the update preconditions. It reports whether
// a row matched.
func (a *users) UpdateKYCTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update KYCUpdate) (bool, error) {
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = a.now()
	}

	q := tx.NewUpdate().
		Model((*User)(nil)).
		Set("kyc_status = ?", string(update.Status)).
		Set("updated_at = ?", updatedAt.UTC()).
		Where("?TableAlias.id = ?", id)

	if update.SessionID != nil {
		q = q.Set("provider_session_id = ?", *update.SessionID)
	}

	if update.ExpectSessionID != "" {
		q = q.Where("?TableAlias.provider_session_id = ?", update.ExpectSessionID)
	}

	if len(update.From) > 0 {
		q = q.Where("?TableAlias.kyc_status IN (?)", bun.In(statusStrings(update.From)))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (a *users) prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := a.now().UTC()
		record.CreatedAt = &now
	}

	if record.UpdatedAt == nil {
		record.UpdatedAt = record.CreatedAt
	}
}

func recordNotFound(field, value string) error {
	return goerrors.Wrap(repository.ErrRecordNotFound, goerrors.CategoryNotFound, "record not found").
		WithMetadata(map[string]any{field: value})
}

func statusStrings(statuses []KYCStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
