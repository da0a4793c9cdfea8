// Package reconcile converges a consuming session's optimistic
// "uploading" placeholder tiles onto the authoritative server list.
// Placeholders are purely a rendering aid: they carry no authority and
// all convergence is re-derivable from the current server list plus
// this local state, so dropped, duplicated or reordered relay events
// cannot corrupt it.
package reconcile

import (
	"sync"

	"capture-relay-api/internal/model"
	"capture-relay-api/pkg/uid"
)

// Origin says which device initiated the capture a tile stands in
// for.
type Origin string

const (
	OriginMobile  Origin = "mobile"
	OriginDesktop Origin = "desktop"
)

// Tile is one ephemeral placeholder. Created the instant a capture or
// upload begins, before any network round-trip completes.
type Tile struct {
	ID             string
	Origin         Origin
	ClientHash     string // content fingerprint, optional
	ExpectedKey    string // known immediately for desktop uploads
	SessionContext string // optional scoping key for page filtering
}

func (t *Tile) unmapped() bool {
	return t.ExpectedKey == "" && t.ClientHash == ""
}

// RenderItem is one entry of the display list: either an unresolved
// placeholder or an authoritative record.
type RenderItem struct {
	Placeholder bool                `json:"placeholder"`
	TileID      string              `json:"tile_id,omitempty"`
	Origin      Origin              `json:"origin,omitempty"`
	Record      *model.UploadRecord `json:"record,omitempty"`
}

// Reconciler holds one session's unresolved tiles, oldest first, and
// the last observed size of the authoritative list. All methods are
// synchronous, non-blocking state mutations, safe for concurrent use.
type Reconciler struct {
	mu           sync.Mutex
	tiles        []*Tile // oldest first
	lastObserved int
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{}
}

// AddPlaceholder registers a new tile and returns its id. Any of
// clientHash, expectedKey and sessionContext may be empty.
func (r *Reconciler) AddPlaceholder(origin Origin, clientHash, expectedKey, sessionContext string) string {
	tile := &Tile{
		ID:             uid.New(),
		Origin:         origin,
		ClientHash:     clientHash,
		ExpectedKey:    expectedKey,
		SessionContext: sessionContext,
	}

	r.mu.Lock()
	r.tiles = append(r.tiles, tile)
	r.mu.Unlock()
	return tile.ID
}

// SetExpectedKey attaches a server key to a pending tile once the
// upload response reveals it (desktop batch flow).
func (r *Reconciler) SetExpectedKey(tileID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tiles {
		if t.ID == tileID {
			t.ExpectedKey = key
			return
		}
	}
}

// Remove drops a tile immediately. Called when its upload attempt
// fails or is cancelled, so no orphaned tile waits for
// reconciliation.
func (r *Reconciler) Remove(tileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, t := range r.tiles {
		if t.ID == tileID {
			r.tiles = append(r.tiles[:i], r.tiles[i+1:]...)
			return
		}
	}
}

// Unresolved returns a snapshot of the pending tiles, oldest first.
func (r *Reconciler) Unresolved() []Tile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Tile, len(r.tiles))
	for i, t := range r.tiles {
		out[i] = *t
	}
	return out
}

// Reconcile retires tiles against the current authoritative list in
// three passes: by expected key, by client hash, then by observed
// count growth (oldest unmapped tiles first). Idempotent: a second
// call with the same list removes nothing further.
func (r *Reconciler) Reconcile(server []model.UploadRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make(map[string]struct{}, len(server))
	hashes := make(map[string]struct{}, len(server))
	for i := range server {
		keys[server[i].ContentKey] = struct{}{}
		if server[i].ClientHash != "" {
			hashes[server[i].ClientHash] = struct{}{}
		}
	}

	// Pass 1 and 2: strong matches by key, then by fingerprint.
	kept := r.tiles[:0]
	for _, t := range r.tiles {
		if _, ok := keys[t.ExpectedKey]; t.ExpectedKey != "" && ok {
			continue
		}
		if _, ok := hashes[t.ClientHash]; t.ClientHash != "" && ok {
			continue
		}
		kept = append(kept, t)
	}

	// Pass 3: best-effort fallback for tiles with no matching signal,
	// bounded by how much the observed list actually grew.
	delta := len(server) - r.lastObserved
	if delta > 0 {
		remaining := kept[:0]
		for _, t := range kept {
			if delta > 0 && t.unmapped() {
				delta--
				continue
			}
			remaining = append(remaining, t)
		}
		kept = remaining
	}

	// Zero the tail so dropped tiles don't linger in the backing array.
	for i := len(kept); i < len(r.tiles); i++ {
		r.tiles[i] = nil
	}
	r.tiles = kept
	r.lastObserved = len(server)
}

// RenderList derives the display list: unresolved placeholders
// (newest first) prepended to the authoritative records. Resolved
// tiles are filtered even if Reconcile hasn't run yet for this list.
func (r *Reconciler) RenderList(server []model.UploadRecord) []RenderItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make(map[string]struct{}, len(server))
	hashes := make(map[string]struct{}, len(server))
	for i := range server {
		keys[server[i].ContentKey] = struct{}{}
		if server[i].ClientHash != "" {
			hashes[server[i].ClientHash] = struct{}{}
		}
	}

	items := make([]RenderItem, 0, len(r.tiles)+len(server))
	for i := len(r.tiles) - 1; i >= 0; i-- {
		t := r.tiles[i]
		if _, ok := keys[t.ExpectedKey]; t.ExpectedKey != "" && ok {
			continue
		}
		if _, ok := hashes[t.ClientHash]; t.ClientHash != "" && ok {
			continue
		}
		items = append(items, RenderItem{Placeholder: true, TileID: t.ID, Origin: t.Origin})
	}
	for i := range server {
		items = append(items, RenderItem{Record: &server[i]})
	}
	return items
}
