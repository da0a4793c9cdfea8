package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capture-relay-api/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "captures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAccountRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetAccount(ctx, "acct-1")
	require.ErrorIs(t, err, ErrAccountNotFound)

	created := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateAccount(ctx, &model.Account{ID: "acct-1", Tier: model.TierFree, CreatedAt: created}))

	account, err := store.GetAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, account.Tier)
	assert.True(t, account.CreatedAt.Equal(created))
}

func TestGetOrInitUsageIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrInitUsage(ctx, "acct-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, first.UploadCount)

	// Concurrent first-use must not double-create.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.GetOrInitUsage(ctx, "acct-2", "2026-08")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	usage, err := store.GetOrInitUsage(ctx, "acct-2", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.UploadCount)
	assert.Equal(t, 0, usage.GraceUnlocksUsed)
}

func TestIncrementUploadCountIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrInitUsage(ctx, "acct-1", "2026-08")
	require.NoError(t, err)

	// Rapid multi-photo capture: N concurrent increments must land as
	// exactly N, no lost updates.
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.IncrementUploadCount(ctx, "acct-1", "2026-08"))
		}()
	}
	wg.Wait()

	usage, err := store.GetOrInitUsage(ctx, "acct-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, n, usage.UploadCount)
}

func TestIncrementUnknownPeriod(t *testing.T) {
	store := newTestStore(t)

	err := store.IncrementUploadCount(context.Background(), "acct-1", "2026-08")
	assert.ErrorIs(t, err, ErrUsageNotFound)
}

func TestUseGraceUnlockEnforcesCap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrInitUsage(ctx, "acct-1", "2026-08")
	require.NoError(t, err)

	usage, err := store.UseGraceUnlock(ctx, "acct-1", "2026-08", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.GraceUnlocksUsed)

	usage, err = store.UseGraceUnlock(ctx, "acct-1", "2026-08", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.GraceUnlocksUsed)

	_, err = store.UseGraceUnlock(ctx, "acct-1", "2026-08", 2)
	assert.ErrorIs(t, err, ErrGraceUnlocksExhausted)
}

func TestPeriodsAreIndependentRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrInitUsage(ctx, "acct-1", "2026-08")
	require.NoError(t, err)
	require.NoError(t, store.IncrementUploadCount(ctx, "acct-1", "2026-08"))

	// A period rollover starts from zero; the old row is untouched.
	fresh, err := store.GetOrInitUsage(ctx, "acct-1", "2026-09")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.UploadCount)

	old, err := store.GetOrInitUsage(ctx, "acct-1", "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 1, old.UploadCount)
}

func testRecord(accountID, imageID string, createdAt time.Time) *model.UploadRecord {
	return &model.UploadRecord{
		ImageID:    imageID,
		AccountID:  accountID,
		ContentKey: "uploads/" + accountID + "/" + imageID + ".jpg",
		SizeBytes:  1234,
		Width:      1920,
		Height:     1280,
		ClientHash: "hash-" + imageID,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(24 * time.Hour),
	}
}

func TestUploadInsertGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	record := testRecord("acct-1", "img-1", now)
	record.Side = "R"
	record.Description = "wound check"
	require.NoError(t, store.InsertUpload(ctx, record))

	got, err := store.GetUpload(ctx, "acct-1", "img-1")
	require.NoError(t, err)
	assert.Equal(t, record.ContentKey, got.ContentKey)
	assert.Equal(t, "R", got.Side)
	assert.Equal(t, "wound check", got.Description)
	assert.Equal(t, "hash-img-1", got.ClientHash)

	// Duplicate image id is rejected: one record per accepted capture.
	assert.Error(t, store.InsertUpload(ctx, testRecord("acct-1", "img-1", now)))

	_, err = store.GetUpload(ctx, "other", "img-1")
	assert.ErrorIs(t, err, ErrUploadNotFound)

	require.NoError(t, store.DeleteUpload(ctx, "acct-1", "img-1"))
	assert.ErrorIs(t, store.DeleteUpload(ctx, "acct-1", "img-1"), ErrUploadNotFound)
}

func TestListUploadsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.InsertUpload(ctx, testRecord("acct-1", "img-old", base.Add(-2*time.Hour))))
	require.NoError(t, store.InsertUpload(ctx, testRecord("acct-1", "img-new", base)))
	require.NoError(t, store.InsertUpload(ctx, testRecord("acct-2", "img-other", base)))

	records, err := store.ListUploads(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "img-new", records[0].ImageID)
	assert.Equal(t, "img-old", records[1].ImageID)
}

func TestDeleteExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	expired := testRecord("acct-1", "img-expired", now.Add(-48*time.Hour))
	live := testRecord("acct-1", "img-live", now)
	require.NoError(t, store.InsertUpload(ctx, expired))
	require.NoError(t, store.InsertUpload(ctx, live))

	swept, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, "img-expired", swept[0].ImageID)

	records, err := store.ListUploads(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "img-live", records[0].ImageID)

	// Nothing more to sweep.
	swept, err = store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, swept)
}
