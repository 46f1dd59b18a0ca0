package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/storefront/client/internal/domain/cart"
	"github.com/storefront/client/internal/infrastructure/event"
)

// State is the cart lifecycle state
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Store holds the authoritative local view of the cart. All operations are
// synchronous and local-only; network reconciliation is the Syncer's job.
// Derived values (subtotal, count) are computed from the item list on every
// read so they can never desynchronize from it.
type Store struct {
	mu       sync.RWMutex
	items    cart.Items
	state    State
	lastErr  string
	revision uint64

	bus *event.Bus
}

// NewStore creates an empty cart store publishing changes on bus.
func NewStore(bus *event.Bus) *Store {
	return &Store{bus: bus}
}

// Add appends the item with quantity 1, or increments an existing line up
// to its stock ceiling. Past the ceiling it is a silent no-op: the UI has
// already disabled the control, so there is nobody to surface an error to.
// Reports whether the cart changed.
func (s *Store) Add(item cart.Item) bool {
	s.mu.Lock()
	if item.ProductID == "" {
		s.mu.Unlock()
		return false
	}

	if i := s.items.Find(item.ProductID); i >= 0 {
		existing := &s.items[i]
		if existing.AtCeiling() {
			s.mu.Unlock()
			return false
		}
		existing.Quantity++
	} else {
		item.Quantity = 1
		s.items = append(s.items, item)
		s.state = StateReady
	}
	rev := s.bumpLocked()
	s.mu.Unlock()

	s.notify(rev)
	return true
}

// Remove drops the matching line. Removing an absent product is a no-op,
// not an error. Reports whether the cart changed.
func (s *Store) Remove(productID string) bool {
	s.mu.Lock()
	i := s.items.Find(productID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	rev := s.bumpLocked()
	s.mu.Unlock()

	s.notify(rev)
	return true
}

// SetQuantity sets an existing line's quantity. Values outside
// (0, stock ceiling] are ignored; the caller validated against the same
// ceiling it was shown. Reports whether the cart changed.
func (s *Store) SetQuantity(productID string, quantity int) bool {
	s.mu.Lock()
	i := s.items.Find(productID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	item := &s.items[i]
	if quantity <= 0 || (item.Stock > 0 && quantity > item.Stock) || item.Quantity == quantity {
		s.mu.Unlock()
		return false
	}
	item.Quantity = quantity
	rev := s.bumpLocked()
	s.mu.Unlock()

	s.notify(rev)
	return true
}

// Clear empties the item list. Used on logout and after a confirmed
// server-side clear.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.state = StateEmpty
	s.lastErr = ""
	rev := s.bumpLocked()
	s.mu.Unlock()

	s.notify(rev)
}

// BeginLoading marks an authoritative fetch in progress. Existing items are
// kept; stale-but-present beats empty.
func (s *Store) BeginLoading() {
	s.mu.Lock()
	s.state = StateLoading
	s.mu.Unlock()
}

// ReplaceAll overwrites the whole item list with an authoritative server
// snapshot.
func (s *Store) ReplaceAll(items cart.Items) {
	s.mu.Lock()
	rev := s.replaceLocked(items)
	s.mu.Unlock()

	s.notify(rev)
}

// ReplaceAllIfRevision overwrites the item list only when no local mutation
// landed since the caller captured revision. This keeps a slow server
// response from clobbering a newer optimistic state; the coordinator's
// re-armed sync pass reconciles instead.
func (s *Store) ReplaceAllIfRevision(revision uint64, items cart.Items) bool {
	s.mu.Lock()
	if s.revision != revision {
		s.mu.Unlock()
		return false
	}
	rev := s.replaceLocked(items)
	s.mu.Unlock()

	s.notify(rev)
	return true
}

func (s *Store) replaceLocked(items cart.Items) uint64 {
	s.items = items.Clone()
	s.lastErr = ""
	if len(s.items) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateReady
	}
	return s.bumpLocked()
}

// FailLoading records a fetch failure. Items are retained.
func (s *Store) FailLoading(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	if len(s.items) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateReady
	}
	s.mu.Unlock()
}

// bumpLocked must be called with the write lock held.
func (s *Store) bumpLocked() uint64 {
	s.revision++
	return s.revision
}

// notify publishes outside the lock so subscribers may read the store.
func (s *Store) notify(revision uint64) {
	if s.bus != nil {
		s.bus.Publish(event.TopicCartChanged, revision)
	}
}

// Items returns a copy of the current item list.
func (s *Store) Items() cart.Items {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Clone()
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the message of the last failed fetch, if any.
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Revision returns the mutation counter. Every local change and every
// authoritative overwrite increments it.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Snapshot returns the item list together with the revision it was taken
// at, for compare-and-swap style reconciliation.
func (s *Store) Snapshot() (cart.Items, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Clone(), s.revision
}

// Subtotal returns the sum of line totals.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Subtotal()
}

// Count returns the total unit count.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Count()
}
