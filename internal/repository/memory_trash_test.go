package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-trash/internal/model"
)

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func trashEntry(id string, originalID string, deletedAt time.Time) model.TrashEntry {
	return model.TrashEntry{
		ID:           id,
		OriginalType: model.EntityAppointment,
		OriginalID:   originalID,
		Scope:        "clinic-1",
		Snapshot:     model.Document{"id": originalID},
		DeletedBy:    "u1",
		DeletedAt:    deletedAt,
		AutoDelete:   true,
	}
}

func TestMemoryTrashStoreCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTrashStore()

	require.NoError(t, s.Create(ctx, trashEntry("T1", "A1", baseTime)))
	require.ErrorIs(t, s.Create(ctx, trashEntry("T2", "A1", baseTime)), model.ErrAlreadyTrashed)

	found, err := s.FindByOriginal(ctx, model.EntityAppointment, "A1")
	require.NoError(t, err)
	assert.Equal(t, "T1", found.ID)

	found.Snapshot["id"] = "mutated"
	again, err := s.FindByID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "A1", again.Snapshot["id"])

	_, err = s.FindByID(ctx, "missing")
	require.ErrorIs(t, err, model.ErrTrashEntryNotFound)
}

func TestMemoryTrashStoreList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTrashStore()

	require.NoError(t, s.Create(ctx, trashEntry("T1", "A1", baseTime)))
	require.NoError(t, s.Create(ctx, trashEntry("T2", "A2", baseTime.Add(time.Hour))))
	require.NoError(t, s.Create(ctx, trashEntry("T3", "A3", baseTime.Add(time.Hour))))
	old := trashEntry("T0", "A0", baseTime.Add(-40*24*time.Hour))
	require.NoError(t, s.Create(ctx, old))

	t.Run("newest first with id tiebreak", func(t *testing.T) {
		entries, err := s.List(ctx, model.TrashQuery{})
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, []string{"T3", "T2", "T1", "T0"}, entryIDs(entries))
	})

	t.Run("hides expired", func(t *testing.T) {
		entries, err := s.List(ctx, model.TrashQuery{ExpiredBefore: baseTime.Add(-30 * 24 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, []string{"T3", "T2", "T1"}, entryIDs(entries))
	})

	t.Run("pages with cursor", func(t *testing.T) {
		first, err := s.List(ctx, model.TrashQuery{Limit: 2})
		require.NoError(t, err)
		require.Equal(t, []string{"T3", "T2"}, entryIDs(first))

		last := first[len(first)-1]
		rest, err := s.List(ctx, model.TrashQuery{Limit: 2, After: &model.TrashCursor{DeletedAt: last.DeletedAt, ID: last.ID}})
		require.NoError(t, err)
		assert.Equal(t, []string{"T1", "T0"}, entryIDs(rest))
	})

	t.Run("filters scope and type", func(t *testing.T) {
		entries, err := s.List(ctx, model.TrashQuery{Scope: "clinic-2"})
		require.NoError(t, err)
		assert.Empty(t, entries)

		entries, err = s.List(ctx, model.TrashQuery{OriginalType: model.EntityPatient})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestMemoryTrashStoreClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTrashStore()
	require.NoError(t, s.Create(ctx, trashEntry("T1", "A1", baseTime)))

	claim := model.RestoreClaim{TrashID: "T1", Token: "k1", At: baseTime, StaleBefore: baseTime.Add(-time.Minute)}
	_, err := s.Claim(ctx, claim)
	require.NoError(t, err)

	t.Run("live claim conflicts", func(t *testing.T) {
		_, err := s.Claim(ctx, model.RestoreClaim{TrashID: "T1", Token: "k2", At: baseTime, StaleBefore: baseTime.Add(-time.Minute)})
		require.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("wrong token cannot delete", func(t *testing.T) {
		require.ErrorIs(t, s.DeleteClaimed(ctx, "T1", "k2"), model.ErrConflict)
	})

	t.Run("stale claim can be taken over", func(t *testing.T) {
		later := baseTime.Add(2 * time.Minute)
		entry, err := s.Claim(ctx, model.RestoreClaim{TrashID: "T1", Token: "k3", At: later, StaleBefore: later.Add(-time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, "k3", entry.ClaimToken)
		require.ErrorIs(t, s.DeleteClaimed(ctx, "T1", "k1"), model.ErrConflict)
		require.NoError(t, s.DeleteClaimed(ctx, "T1", "k3"))
	})

	t.Run("expired entries cannot be claimed", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, trashEntry("T9", "A9", baseTime.Add(-31*24*time.Hour))))
		_, err := s.Claim(ctx, model.RestoreClaim{TrashID: "T9", Token: "k", At: baseTime, ExpiredBefore: baseTime.Add(-30 * 24 * time.Hour)})
		require.ErrorIs(t, err, model.ErrTrashEntryNotFound)
		require.NotErrorIs(t, err, model.ErrConflict)
	})
}

func TestMemoryTrashStoreClaimIsExclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTrashStore()
	require.NoError(t, s.Create(ctx, trashEntry("T1", "A1", baseTime)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Claim(ctx, model.RestoreClaim{TrashID: "T1", Token: fmt.Sprintf("k%d", i), At: baseTime, StaleBefore: baseTime.Add(-time.Minute)})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryTrashStoreDeleteExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTrashStore()
	cutoff := baseTime.Add(-30 * 24 * time.Hour)

	require.NoError(t, s.Create(ctx, trashEntry("old", "A1", baseTime.Add(-31*24*time.Hour))))
	require.NoError(t, s.Create(ctx, trashEntry("older", "A2", baseTime.Add(-32*24*time.Hour))))
	require.NoError(t, s.Create(ctx, trashEntry("fresh", "A3", baseTime.Add(-29*24*time.Hour))))
	retained := trashEntry("kept", "A4", baseTime.Add(-90*24*time.Hour))
	retained.AutoDelete = false
	require.NoError(t, s.Create(ctx, retained))
	claimed := trashEntry("claimed", "A5", baseTime.Add(-40*24*time.Hour))
	claimed.ClaimToken = "k"
	claimed.ClaimedAt = baseTime
	require.NoError(t, s.Create(ctx, claimed))

	removed, err := s.DeleteExpired(ctx, cutoff, baseTime.Add(-time.Minute), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"older"}, entryIDs(removed))

	removed, err = s.DeleteExpired(ctx, cutoff, baseTime.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, entryIDs(removed))
	assert.Equal(t, 3, s.Len())

	_, err = s.FindByOriginal(ctx, model.EntityAppointment, "A1")
	require.ErrorIs(t, err, model.ErrTrashEntryNotFound)
}

func TestMemoryTrashStoreDeleteUnclaimed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryTrashStore()

	claimed := trashEntry("T1", "A1", baseTime)
	claimed.ClaimToken = "k"
	claimed.ClaimedAt = baseTime
	require.NoError(t, s.Create(ctx, claimed))
	require.NoError(t, s.Create(ctx, trashEntry("T2", "A2", baseTime)))

	_, err := s.DeleteUnclaimed(ctx, "T1", baseTime.Add(-time.Minute))
	require.ErrorIs(t, err, model.ErrConflict)

	entry, err := s.DeleteUnclaimed(ctx, "T2", baseTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "A2", entry.OriginalID)

	_, err = s.DeleteUnclaimed(ctx, "T2", baseTime.Add(-time.Minute))
	require.ErrorIs(t, err, model.ErrTrashEntryNotFound)

	require.NoError(t, s.Release(ctx, "T1", "k"))
	removed, err := s.DeleteAll(ctx, "clinic-1", baseTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Zero(t, s.Len())
}

func entryIDs(entries []model.TrashEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}
