package identity_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const sqliteCreatePreferences = `CREATE TABLE preferences (
    id TEXT NOT NULL PRIMARY KEY,
    key TEXT NOT NULL UNIQUE,
    value TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`

func setupPreferencesDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreatePreferences)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return bunDB
}

func TestPreferencesRepository_SetAndGet(t *testing.T) {
	repo := identity.NewPreferencesRepository(setupPreferencesDB(t))
	ctx := context.Background()

	_, found, err := repo.GetValue(ctx, "locale")
	require.NoError(t, err)
	assert.False(t, found)

	record, err := repo.SetValue(ctx, "locale", "fr")
	require.NoError(t, err)
	assert.Equal(t, "locale", record.Key)

	value, found, err := repo.GetValue(ctx, "locale")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fr", value)
}

func TestPreferencesRepository_SetUpdatesInPlace(t *testing.T) {
	repo := identity.NewPreferencesRepository(setupPreferencesDB(t))
	ctx := context.Background()

	first, err := repo.SetValue(ctx, "locale", "fr")
	require.NoError(t, err)
	second, err := repo.SetValue(ctx, "locale", "de")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same row is updated, not duplicated")

	value, found, err := repo.GetValue(ctx, "locale")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "de", value)
}

func TestPreferencesRepository_Unset(t *testing.T) {
	repo := identity.NewPreferencesRepository(setupPreferencesDB(t))
	ctx := context.Background()

	_, err := repo.SetValue(ctx, "profile_selection_made", "true")
	require.NoError(t, err)
	require.NoError(t, repo.Unset(ctx, "profile_selection_made"))

	_, found, err := repo.GetValue(ctx, "profile_selection_made")
	require.NoError(t, err)
	assert.False(t, found)

	// unsetting a missing key is not an error
	assert.NoError(t, repo.Unset(ctx, "missing"))
}

func TestPreferencesStore_ImplementsStore(t *testing.T) {
	store := identity.NewPreferencesStore(setupPreferencesDB(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "locale", "pt-BR"))

	value, found, err := store.Get(ctx, "locale")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "pt-BR", value)

	require.NoError(t, store.Delete(ctx, "locale"))
	_, found, err = store.Get(ctx, "locale")
	require.NoError(t, err)
	assert.False(t, found)
}
