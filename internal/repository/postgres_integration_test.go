//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-trash/internal/database"
	"clinic-trash/internal/model"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.Options{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestTrashRepositoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewTrashRepository(db.Pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	originalID := ulid.Make().String()
	entry := model.TrashEntry{
		ID:           ulid.Make().String(),
		OriginalType: model.EntityAppointment,
		OriginalID:   originalID,
		Scope:        "integration",
		Snapshot:     model.Document{"id": originalID, "slots": []any{"09:00"}},
		DeletedBy:    "u1",
		DeletedAt:    now,
		AutoDelete:   true,
		ClaimToken:   "creator",
		ClaimedAt:    now,
	}
	require.NoError(t, repo.Create(ctx, entry))
	require.ErrorIs(t, repo.Create(ctx, entry), model.ErrAlreadyTrashed)

	_, err := repo.Claim(ctx, model.RestoreClaim{TrashID: entry.ID, Token: "other", At: now, StaleBefore: now.Add(-time.Minute)})
	require.ErrorIs(t, err, model.ErrConflict)

	require.NoError(t, repo.Release(ctx, entry.ID, "creator"))

	claimed, err := repo.Claim(ctx, model.RestoreClaim{TrashID: entry.ID, Token: "k", At: now, StaleBefore: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, entry.Snapshot["slots"], claimed.Snapshot["slots"])

	listed, err := repo.List(ctx, model.TrashQuery{Scope: "integration", ExpiredBefore: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.NotEmpty(t, listed)

	require.ErrorIs(t, repo.DeleteClaimed(ctx, entry.ID, "stale"), model.ErrConflict)
	require.NoError(t, repo.DeleteClaimed(ctx, entry.ID, "k"))

	_, err = repo.FindByID(ctx, entry.ID)
	require.ErrorIs(t, err, model.ErrTrashEntryNotFound)
}

func TestTrashRepositoryDeleteExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewTrashRepository(db.Pool)

	now := time.Now().UTC()
	old := model.TrashEntry{
		ID:           ulid.Make().String(),
		OriginalType: model.EntityPatient,
		OriginalID:   ulid.Make().String(),
		Snapshot:     model.Document{"id": "p"},
		DeletedBy:    "u1",
		DeletedAt:    now.Add(-31 * 24 * time.Hour),
		AutoDelete:   true,
	}
	require.NoError(t, repo.Create(ctx, old))

	_, err := repo.Claim(ctx, model.RestoreClaim{TrashID: old.ID, Token: "k", At: now, StaleBefore: now.Add(-time.Minute), ExpiredBefore: now.Add(-30 * 24 * time.Hour)})
	require.ErrorIs(t, err, model.ErrTrashEntryNotFound)
	require.NotErrorIs(t, err, model.ErrConflict)

	removed, err := repo.DeleteExpired(ctx, now.Add(-30*24*time.Hour), now.Add(-time.Minute), 500)
	require.NoError(t, err)

	ids := make([]string, 0, len(removed))
	for _, e := range removed {
		ids = append(ids, e.ID)
	}
	assert.Contains(t, ids, old.ID)
}

func TestAuditRepositoryAppendIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepository(db.Pool)

	entityID := ulid.Make().String()
	entry := model.AuditEntry{
		ID:          ulid.Make().String(),
		Action:      model.ActionDeleted,
		EntityType:  model.EntityAppointment,
		EntityID:    entityID,
		PerformedBy: "u1",
		OccurredAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.Append(ctx, entry))
	require.NoError(t, repo.Append(ctx, entry))

	items, meta, err := repo.Query(ctx, model.AuditQuery{EntityID: entityID})
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Total)
	require.Len(t, items, 1)
	assert.Equal(t, model.ActionDeleted, items[0].Action)
}
