package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/saga/internal/profile"
	"github.com/hrygo/saga/store"
	"github.com/hrygo/saga/store/db"
)

// NewTestingStore returns a migrated store. It uses a temp-file SQLite
// database unless SAGA_TEST_POSTGRES_DSN points at a pgvector-enabled Postgres.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	return newTestingStore(ctx, t, "dev")
}

func newTestingStore(ctx context.Context, t *testing.T, mode string) *store.Store {
	t.Helper()
	p := getTestingProfile(t, mode)
	dbDriver, err := db.NewDBDriver(p)
	require.NoError(t, err)

	ts := store.New(dbDriver, p)
	require.NoError(t, ts.Migrate(ctx))
	if p.Driver == "postgres" {
		// Postgres tests share one database.
		_, err := dbDriver.GetDB().ExecContext(ctx, "TRUNCATE entry")
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		ts.Close()
	})
	return ts
}

func getDriverFromEnv() string {
	if os.Getenv("SAGA_TEST_POSTGRES_DSN") != "" {
		return "postgres"
	}
	return "sqlite"
}

func getTestingProfile(t *testing.T, mode string) *profile.Profile {
	t.Helper()
	driver := getDriverFromEnv()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:    mode,
		Data:    dir,
		Driver:  driver,
		Version: "0.3.0",
	}
	switch driver {
	case "postgres":
		p.DSN = os.Getenv("SAGA_TEST_POSTGRES_DSN")
	default:
		p.DSN = filepath.Join(dir, fmt.Sprintf("saga_%s.db", mode))
	}
	return p
}
