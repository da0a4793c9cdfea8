package reconcile

import (
	"context"
	"log"
	"time"

	"capture-relay-api/internal/model"
	"capture-relay-api/internal/relay"
)

// ListFunc fetches the current authoritative upload list.
type ListFunc func(ctx context.Context) ([]model.UploadRecord, error)

// Syncer drives a session's reconciler from the relay channel. Events
// are treated strictly as wake-up signals: every refresh re-fetches
// the authoritative list and reconciles against it, so missing,
// duplicated or reordered events only affect freshness, never
// correctness. A poll ticker covers dropped events.
type Syncer struct {
	accountID  string
	reconciler *Reconciler
	subscriber relay.Subscriber
	list       ListFunc
	interval   time.Duration
	onUpdate   func([]RenderItem)
}

// NewSyncer wires a reconciler to the relay and the authoritative
// list source. onUpdate, if non-nil, receives the fresh render list
// after every refresh. pollInterval of zero defaults to 30s.
func NewSyncer(accountID string, reconciler *Reconciler, subscriber relay.Subscriber, list ListFunc, pollInterval time.Duration, onUpdate func([]RenderItem)) *Syncer {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Syncer{
		accountID:  accountID,
		reconciler: reconciler,
		subscriber: subscriber,
		list:       list,
		interval:   pollInterval,
		onUpdate:   onUpdate,
	}
}

// Run subscribes and loops until ctx is cancelled. An initial refresh
// runs eagerly so the session starts from the current list.
func (s *Syncer) Run(ctx context.Context) error {
	sub, err := s.subscriber.Subscribe(ctx, s.accountID)
	if err != nil {
		return err
	}
	defer sub.Close()

	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return nil
			}
			s.refresh(ctx)
		case <-ticker.C:
			s.refresh(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// refresh never raises: a failed fetch just leaves the previous state
// until the next wake-up.
func (s *Syncer) refresh(ctx context.Context) {
	server, err := s.list(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[Syncer] List fetch failed for %s: %v", s.accountID, err)
		}
		return
	}

	s.reconciler.Reconcile(server)
	if s.onUpdate != nil {
		s.onUpdate(s.reconciler.RenderList(server))
	}
}
