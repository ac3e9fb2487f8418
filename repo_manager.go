package kyc

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Validator reports whether the manager is fully wired.
type Validator interface {
	Validate() error
	MustValidate()
}

// TransactionManager runs a function inside a database transaction.
type TransactionManager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validator
	TransactionManager
	Users() Users
	ProcessedEvents() ProcessedEvents
}

type mngr struct {
	db              *bun.DB
	users           Users
	processedEvents ProcessedEvents
}

// RepositoryManagerOption customizes the repositories built by the manager.
type RepositoryManagerOption func(*mngr)

// WithUsers replaces the users repository.
func WithUsers(users Users) RepositoryManagerOption {
	return func(m *mngr) {
		if users != nil {
			m.users = users
		}
	}
}

// WithProcessedEvents replaces the processed events repository.
func WithProcessedEvents(events ProcessedEvents) RepositoryManagerOption {
	return func(m *mngr) {
		if events != nil {
			m.processedEvents = events
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:              db,
		users:           NewUsersRepository(db),
		processedEvents: NewProcessedEventsRepository(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.processedEvents == nil {
		return errors.New("repository processedEvents should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) ProcessedEvents() ProcessedEvents {
	return m.processedEvents
}
