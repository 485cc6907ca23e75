package nine

import (
	"sync"

	"github.com/google/uuid"
)

// Namespace is the single contract realized by every storage and
// composition variant in this module (Memory, File, Kernel, Store,
// NetworkNamespace). It exposes exactly five operations, per spec: read,
// write, list, watch, close.
type Namespace interface {
	// Read returns the current Scroll at path, or (nil, nil) if absent.
	// Absence is not an error. Reading a tombstoned Scroll returns it
	// with Metadata.Deleted set.
	Read(path string) (*Scroll, error)

	// Write validates path, stamps metadata, computes the hash, persists
	// the result, and notifies matching watchers. It returns the
	// persisted Scroll.
	Write(path string, data map[string]any) (*Scroll, error)

	// WriteScroll behaves like Write but preserves the caller-supplied
	// Type and CreatedAt hint (honored only when no prior value exists).
	// Version, Hash, and UpdatedAt are always recomputed.
	WriteScroll(scroll *Scroll) (*Scroll, error)

	// List returns every key for which IsUnder(prefix, key) holds. An
	// empty result is not an error.
	List(prefix string) ([]string, error)

	// Watch returns a Subscription emitting each Scroll whose key
	// matches pattern after it has been persisted.
	Watch(pattern string) (*Subscription, error)

	// Close idempotently terminates all subscriptions, releases backing
	// resources, and transitions the Namespace to closed. Every
	// subsequent operation returns a Closed error.
	Close() error
}

// Subscription is the lazy sequence of Scrolls returned by Watch. It is
// not restartable and carries no history: only Scrolls persisted after the
// subscription was established are emitted.
type Subscription struct {
	id      string
	pattern string
	ch      chan *Scroll

	mu     sync.Mutex
	closed bool
}

// NewSubscription creates a Subscription for the given pattern with the
// given buffered channel capacity. Namespace implementations construct
// these; callers receive them from Watch. Each subscription is assigned a
// process-unique id, used internally for diagnosing fan-out and never
// exposed over the wire protocol.
func NewSubscription(pattern string, bufferSize int) *Subscription {
	return &Subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		ch:      make(chan *Scroll, bufferSize),
	}
}

// ID returns the subscription's process-unique identifier.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the watch pattern this subscription was established
// with.
func (s *Subscription) Pattern() string { return s.pattern }

// Events returns the channel of emitted Scrolls. It is closed when the
// subscription is closed.
func (s *Subscription) Events() <-chan *Scroll { return s.ch }

// Close terminates the subscription. It is idempotent and safe to call
// from any goroutine, including concurrently with a fan-out dispatch.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Alive reports whether the subscription is still eligible for delivery.
func (s *Subscription) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// deliver attempts a non-blocking send of scroll to the subscription.
// It reports whether the subscription is still alive; a dead or full
// subscription (closed sink or lost consumer) is reported as not alive so
// callers can reclaim it, per the watch-reclamation design note.
func (s *Subscription) deliver(scroll *Scroll) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- scroll:
		return true
	default:
		// Consumer is not keeping up or has stopped reading; treat as
		// dead so the registry sweeps it on the next fan-out.
		s.closed = true
		close(s.ch)
		return false
	}
}

// Deliver is exported for use by Namespace implementations outside this
// package (e.g. kernel, store) that wrap a Subscription obtained from an
// underlying backend rather than constructing their own.
func Deliver(s *Subscription, scroll *Scroll) bool { return s.deliver(scroll) }
