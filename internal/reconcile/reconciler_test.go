package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capture-relay-api/internal/model"
)

func serverList(keys ...string) []model.UploadRecord {
	records := make([]model.UploadRecord, len(keys))
	for i, k := range keys {
		records[i] = model.UploadRecord{ImageID: "img-" + k, ContentKey: k}
	}
	return records
}

func TestReconcileByExpectedKey(t *testing.T) {
	r := New()
	r.AddPlaceholder(OriginDesktop, "", "k1", "")

	r.Reconcile(serverList("k1"))
	assert.Empty(t, r.Unresolved())
}

func TestReconcileByExpectedKeyIsIdempotent(t *testing.T) {
	r := New()
	r.AddPlaceholder(OriginDesktop, "", "k1", "")

	list := serverList("k1")
	r.Reconcile(list)
	require.Empty(t, r.Unresolved())

	// Second call with the same list removes nothing further.
	other := r.AddPlaceholder(OriginMobile, "", "", "")
	r.Reconcile(list)
	unresolved := r.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, other, unresolved[0].ID)
}

func TestReconcileByClientHash(t *testing.T) {
	r := New()
	r.AddPlaceholder(OriginDesktop, "hash-a", "", "")
	r.AddPlaceholder(OriginDesktop, "hash-b", "", "")

	server := []model.UploadRecord{
		{ImageID: "i1", ContentKey: "k1", ClientHash: "hash-a"},
	}
	r.Reconcile(server)

	unresolved := r.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "hash-b", unresolved[0].ClientHash)
}

func TestReconcileExpectedKeyWinsEvenWithMatchingHash(t *testing.T) {
	r := New()
	id := r.AddPlaceholder(OriginDesktop, "hash-a", "k1", "")

	server := []model.UploadRecord{
		{ImageID: "i1", ContentKey: "k1", ClientHash: "hash-a"},
	}
	r.Reconcile(server)
	assert.Empty(t, r.Unresolved(), "tile %s should resolve exactly once", id)
}

func TestReconcileCountDeltaRemovesOldestUnmapped(t *testing.T) {
	r := New()
	// Establish a baseline of 5 observed records.
	r.Reconcile(serverList("a", "b", "c", "d", "e"))

	first := r.AddPlaceholder(OriginMobile, "", "", "")
	second := r.AddPlaceholder(OriginMobile, "", "", "")
	third := r.AddPlaceholder(OriginMobile, "", "", "")

	// Two new records appear with no key/hash signal: exactly the two
	// oldest unmapped tiles go.
	r.Reconcile(serverList("a", "b", "c", "d", "e", "f", "g"))

	unresolved := r.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, third, unresolved[0].ID)
	assert.NotEqual(t, first, unresolved[0].ID)
	assert.NotEqual(t, second, unresolved[0].ID)
}

func TestReconcileCountDeltaSkipsMappedTiles(t *testing.T) {
	r := New()
	r.Reconcile(serverList("a"))

	mapped := r.AddPlaceholder(OriginDesktop, "", "pending-key", "")
	r.AddPlaceholder(OriginMobile, "", "", "")

	// One record appears that matches neither signal: only the
	// unmapped tile may be retired for it.
	r.Reconcile(serverList("a", "b"))

	unresolved := r.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, mapped, unresolved[0].ID)
}

func TestReconcileNeverRemovesMoreThanDelta(t *testing.T) {
	r := New()
	r.Reconcile(serverList("a", "b", "c"))

	r.AddPlaceholder(OriginMobile, "", "", "")
	r.AddPlaceholder(OriginMobile, "", "", "")

	// Observed count shrinks (expiry sweep): no fallback removal.
	r.Reconcile(serverList("a", "b"))
	assert.Len(t, r.Unresolved(), 2)

	// Count recovers by one: exactly one tile retired.
	r.Reconcile(serverList("a", "b", "c"))
	assert.Len(t, r.Unresolved(), 1)
}

func TestSetExpectedKeyAfterUploadResponse(t *testing.T) {
	r := New()
	// Baseline so the count-delta fallback cannot claim the tile.
	r.Reconcile(serverList("existing"))

	id := r.AddPlaceholder(OriginDesktop, "", "", "")
	r.SetExpectedKey(id, "k-new")
	r.Reconcile(serverList("existing", "k-new"))
	assert.Empty(t, r.Unresolved())
}

func TestRemoveOnFailedUpload(t *testing.T) {
	r := New()
	id := r.AddPlaceholder(OriginDesktop, "hash-x", "", "")

	r.Remove(id)
	assert.Empty(t, r.Unresolved())

	// Removing twice is harmless.
	r.Remove(id)
	assert.Empty(t, r.Unresolved())
}

func TestRenderListPrependsUnresolvedNewestFirst(t *testing.T) {
	r := New()
	older := r.AddPlaceholder(OriginMobile, "", "", "")
	newer := r.AddPlaceholder(OriginDesktop, "", "", "")

	server := serverList("k1", "k2")
	items := r.RenderList(server)

	require.Len(t, items, 4)
	assert.True(t, items[0].Placeholder)
	assert.Equal(t, newer, items[0].TileID)
	assert.True(t, items[1].Placeholder)
	assert.Equal(t, older, items[1].TileID)
	assert.False(t, items[2].Placeholder)
	assert.Equal(t, "k1", items[2].Record.ContentKey)
	assert.Equal(t, "k2", items[3].Record.ContentKey)
}

func TestRenderListFiltersResolvedBeforeReconcile(t *testing.T) {
	r := New()
	r.AddPlaceholder(OriginDesktop, "", "k1", "")

	// The matching record arrived but Reconcile hasn't run yet; the
	// render list must not show a phantom duplicate.
	items := r.RenderList(serverList("k1"))
	require.Len(t, items, 1)
	assert.False(t, items[0].Placeholder)
}
