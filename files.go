package kyc

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationsRoot = "data/sql/migrations"

var registerModels sync.Once

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// Migrate runs the embedded dialect migrations through a persistence client
// and returns the client's database handle. Applied versions are tracked by
// the migrator, so calling it on every boot is safe.
func Migrate(ctx context.Context, cfg persistence.Config, sqldb *sql.DB, dialect schema.Dialect) (*bun.DB, error) {
	registerModels.Do(func() {
		persistence.RegisterModel((*User)(nil))
		persistence.RegisterModel((*ProcessedEvent)(nil))
	})

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create persistence client")
	}

	migrations, err := fs.Sub(migrationsFS, migrationsRoot)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read migrations")
	}

	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel(migrationsRoot),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid dialect migrations")
	}

	if err := client.Migrate(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations").
			WithMetadata(map[string]any{"dialect": dialect.Name().String()})
	}

	return client.DB(), nil
}

// CreateSchema migrates the database behind db. It is Migrate for callers
// that already hold a *bun.DB.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	_, err := Migrate(ctx, schemaConfig{driver: db.Dialect().Name().String()}, db.DB, db.Dialect())
	return err
}

type schemaConfig struct {
	driver string
}

func (c schemaConfig) GetDebug() bool                { return false }
func (c schemaConfig) GetDriver() string             { return c.driver }
func (c schemaConfig) GetServer() string             { return "" }
func (c schemaConfig) GetDSN() string                { return "" }
func (c schemaConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c schemaConfig) GetOtelIdentifier() string     { return "kyc" }
