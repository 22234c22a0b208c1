package core

import "time"

// Event types published to subscribers.
const (
	EventDatasetReplaced = "dataset.replaced"
	EventReloadFailed    = "reload.failed"
)

// eventBuffer is the per-subscriber queue length.
const eventBuffer = 8

// Event describes a finished reload.
type Event struct {
	Type      string    `json:"type"`
	DatasetID string    `json:"dataset_id,omitempty"`
	Path      string    `json:"path"`
	Rows      int       `json:"rows,omitempty"`
	Removed   int       `json:"removed,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Subscribe returns a channel of reload events and a function that
// unsubscribes and closes it. Slow subscribers miss events rather than
// blocking reloads.
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var done bool
	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if done {
			return
		}
		done = true
		delete(s.subscribers, ch)
		close(ch)
	}
	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscriptions.
func (s *Service) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// publish sends ev to every subscriber without blocking.
func (s *Service) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is slow, skip this event
		}
	}
}
