package relay

import (
	"context"
	"sync"

	"capture-relay-api/internal/model"
)

// MemoryRelay is an in-process implementation of Publisher and
// Subscriber. Use this for development/testing or single-instance
// deployments where redis is unavailable.
type MemoryRelay struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryRelay creates a new in-process relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

// Publish fans the event out to the account's subscribers. Slow
// subscribers with a full buffer miss the event; the poll fallback
// covers them.
func (m *MemoryRelay) Publish(ctx context.Context, accountID string, event model.RelayEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for sub := range m.subs[accountID] {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

// Subscribe opens a stream of the account's events.
func (m *MemoryRelay) Subscribe(ctx context.Context, accountID string) (Subscription, error) {
	sub := &memorySubscription{
		relay:     m,
		accountID: accountID,
		events:    make(chan model.RelayEvent, 16),
	}

	m.mu.Lock()
	if m.subs[accountID] == nil {
		m.subs[accountID] = make(map[*memorySubscription]struct{})
	}
	m.subs[accountID][sub] = struct{}{}
	m.mu.Unlock()

	return sub, nil
}

func (m *MemoryRelay) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.subs[sub.accountID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.subs, sub.accountID)
		}
	}
}

type memorySubscription struct {
	relay     *MemoryRelay
	accountID string
	events    chan model.RelayEvent
	closeOnce sync.Once
}

// Events yields relay events until Close.
func (s *memorySubscription) Events() <-chan model.RelayEvent {
	return s.events
}

// Close removes the subscription and closes the Events channel.
func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() {
		s.relay.remove(s)
		close(s.events)
	})
	return nil
}

// Ensure MemoryRelay implements both relay interfaces
var (
	_ Publisher  = (*MemoryRelay)(nil)
	_ Subscriber = (*MemoryRelay)(nil)
)
