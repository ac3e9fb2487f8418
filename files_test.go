package kyc_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-kyc"
	"github.com/goliatone/go-kyc/config"
)

func TestMigrationsShipBothDialects(t *testing.T) {
	migrations := kyc.GetMigrationsFS()

	for _, dialect := range []string{"sqlite", "postgres"} {
		entries, err := fs.ReadDir(migrations, "data/sql/migrations/"+dialect)
		require.NoError(t, err, dialect)

		var names []string
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		assert.Contains(t, names, "0001_kyc_users.up.sql", dialect)
		assert.Contains(t, names, "0002_kyc_processed_events.up.sql", dialect)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqldb.Close() })

	cfg := config.Defaults().Database

	db, err := kyc.Migrate(ctx, cfg, sqldb, sqlitedialect.New())
	require.NoError(t, err)

	repo := kyc.NewRepositoryManager(db)
	user := seedUser(t, repo, kyc.StatusPending, "vs_migrate")

	// second boot over the same database
	db, err = kyc.Migrate(ctx, cfg, sqldb, sqlitedialect.New())
	require.NoError(t, err)
	require.NoError(t, kyc.CreateSchema(ctx, db))

	reloaded := reloadUser(t, kyc.NewRepositoryManager(db), user.ID)
	assert.Equal(t, kyc.StatusPending, reloaded.KYCStatus)

	var tables int
	require.NoError(t, db.NewRaw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'kyc_processed_events')",
	).Scan(ctx, &tables))
	assert.Equal(t, 2, tables)
}
