package loam

import "sync"

// WriteEventKind identifies the kind of event published to write
// observers. Today there is exactly one: DOCUMENT_WRITE.
type WriteEventKind string

// DocumentWrite is published after every accepted ingest.
const DocumentWrite WriteEventKind = "DOCUMENT_WRITE"

// WriteEvent is delivered synchronously, in ingest-completion order, to
// every registered Observer after a document is accepted. Ignored or
// failed writes never produce an event.
type WriteEvent struct {
	Kind     WriteEventKind
	IsLocal  bool
	IsLatest bool
	Document Document
}

// Observer receives write events. A panicking Observer is isolated: it
// cannot corrupt the store or prevent delivery to other observers.
type Observer func(WriteEvent)

// observerSet is a typed fan-out: a mutex-guarded slice of listeners,
// per the concurrency model in SPEC_FULL.md §5/§9 (a lock-free
// generation-counter list would be overkill for write-event volumes a
// single workspace actor produces).
type observerSet struct {
	mu        sync.RWMutex
	observers []Observer
}

// subscribe registers obs and returns a function that removes it.
func (s *observerSet) subscribe(obs Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := len(s.observers)
	s.observers = append(s.observers, obs)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if id < len(s.observers) {
			s.observers[id] = nil
		}
	}
}

// publish delivers ev to every live observer, isolating panics.
func (s *observerSet) publish(ev WriteEvent) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, obs := range observers {
		if obs == nil {
			continue
		}
		callObserver(obs, ev)
	}
}

func callObserver(obs Observer, ev WriteEvent) {
	defer func() { _ = recover() }()
	obs(ev)
}
