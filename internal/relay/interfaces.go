// Package relay fans captured-upload events out to an account's
// connected sessions. Delivery is best-effort and at-least-once with
// no ordering guarantee; consumers treat events purely as a signal to
// re-fetch the authoritative list.
package relay

import (
	"context"

	"capture-relay-api/internal/model"
)

// Publisher pushes an event to every session subscribed to the
// account's channel. Publish failures must never be surfaced to the
// uploader as ingestion failures.
type Publisher interface {
	Publish(ctx context.Context, accountID string, event model.RelayEvent) error
}

// Subscriber opens a per-account event stream.
type Subscriber interface {
	Subscribe(ctx context.Context, accountID string) (Subscription, error)
}

// Subscription is one session's live event stream. Events may be
// missed (drops are tolerated by the consumer's poll fallback) and
// may be duplicated.
type Subscription interface {
	// Events yields relay events until the subscription is closed.
	Events() <-chan model.RelayEvent

	// Close tears down the stream and closes the Events channel.
	Close() error
}
