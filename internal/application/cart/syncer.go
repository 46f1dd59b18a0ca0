package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/client/internal/domain/cart"
	"github.com/storefront/client/internal/infrastructure/api"
)

// Backend is the slice of the API client the coordinator needs.
type Backend interface {
	GetCart(ctx context.Context) (cart.Items, error)
	BulkSync(ctx context.Context, entries []api.SyncEntry) (cart.Items, error)
	PutItem(ctx context.Context, productID string, quantity int) (cart.Items, error)
	DeleteItem(ctx context.Context, productID string) (cart.Items, error)
	ClearCart(ctx context.Context) (cart.Items, error)
}

// Options tunes the coordinator.
type Options struct {
	// DebounceWindow is the quiet period after the last mutation before one
	// bulk sync fires for the whole burst.
	DebounceWindow time.Duration
	// SyncTimeout bounds each background network call.
	SyncTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = time.Second
	}
	if o.SyncTimeout <= 0 {
		o.SyncTimeout = 15 * time.Second
	}
}

// Syncer bridges optimistic local cart mutations to the backend. Mutations
// apply to the Store immediately and return; the network work happens in
// detached goroutines that never surface errors to the caller. Two paths
// exist: a trailing-debounce bulk sync of the full item list, and an
// immediate per-intent write followed by an authoritative overwrite from
// the write's response.
type Syncer struct {
	store   *Store
	backend Backend
	authed  func() bool
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	rearm    bool
}

// NewSyncer creates a sync coordinator. authed reports whether the current
// session is authenticated; guest carts stay local and are never synced.
func NewSyncer(store *Store, backend Backend, authed func() bool, opts Options, logger *zap.Logger) *Syncer {
	opts.applyDefaults()
	return &Syncer{
		store:   store,
		backend: backend,
		authed:  authed,
		opts:    opts,
		logger:  logger,
	}
}

// Store exposes the underlying cart store for read access.
func (s *Syncer) Store() *Store {
	return s.store
}

// ---------------------------------------------------------------------------
// User intents
// ---------------------------------------------------------------------------

// Add applies the optimistic add and schedules reconciliation.
func (s *Syncer) Add(item cart.Item) {
	if !s.store.Add(item) {
		return
	}
	s.schedule()
	if qty, ok := s.quantityOf(item.ProductID); ok {
		s.writeItem(item.ProductID, qty)
	}
}

// Remove applies the optimistic remove and schedules reconciliation.
func (s *Syncer) Remove(productID string) {
	if !s.store.Remove(productID) {
		return
	}
	s.schedule()
	s.deleteItem(productID)
}

// SetQuantity applies the optimistic quantity change and schedules
// reconciliation.
func (s *Syncer) SetQuantity(productID string, quantity int) {
	if !s.store.SetQuantity(productID, quantity) {
		return
	}
	s.schedule()
	s.writeItem(productID, quantity)
}

// Clear empties the local cart and asks the backend to do the same.
func (s *Syncer) Clear() {
	s.store.Clear()
	if !s.authed() {
		return
	}
	go s.background("clear cart", func(ctx context.Context) (cart.Items, uint64, error) {
		_, rev := s.store.Snapshot()
		items, err := s.backend.ClearCart(ctx)
		return items, rev, err
	})
}

// Fetch requests the authoritative cart and overwrites local state with it.
// Unlike the mutation paths this is synchronous: callers (session hooks,
// pull-to-refresh) want to observe the result. A failure records an error
// on the store but keeps the current items.
func (s *Syncer) Fetch(ctx context.Context) error {
	s.store.BeginLoading()
	items, err := s.backend.GetCart(ctx)
	if err != nil {
		s.store.FailLoading(err.Error())
		return err
	}
	s.store.ReplaceAll(items)
	return nil
}

// ---------------------------------------------------------------------------
// Debounced bulk sync
// ---------------------------------------------------------------------------

// schedule arms the trailing debounce. Every new mutation pushes the window
// out, so only the last mutation of a burst fires a bulk sync.
func (s *Syncer) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.DebounceWindow, s.firePass)
}

// firePass runs on the timer goroutine once the quiet period elapses.
func (s *Syncer) firePass() {
	if !s.authed() {
		return
	}

	s.mu.Lock()
	if s.inFlight {
		// One bulk write at a time; remember to run again so the final
		// state still reaches the server.
		s.rearm = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	go s.runBulkSync()
}

func (s *Syncer) runBulkSync() {
	defer s.settle()

	items, rev := s.store.Snapshot()
	entries := make([]api.SyncEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, api.SyncEntry{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SyncTimeout)
	defer cancel()

	fresh, err := s.backend.BulkSync(ctx, entries)
	if err != nil {
		// Swallowed: flaky connectivity must never block or roll back the
		// shopping experience. The optimistic state stays.
		s.logger.Warn("cart bulk sync failed",
			zap.Int("items", len(entries)),
			zap.Error(err),
		)
		return
	}

	if !s.store.ReplaceAllIfRevision(rev, fresh) {
		s.logger.Debug("bulk sync response superseded by newer local state")
	}
}

// settle clears the in-flight guard and re-arms the debounce if a mutation
// arrived during the flight.
func (s *Syncer) settle() {
	s.mu.Lock()
	s.inFlight = false
	rearm := s.rearm
	s.rearm = false
	s.mu.Unlock()

	if rearm {
		s.schedule()
	}
}

// ---------------------------------------------------------------------------
// Immediate per-intent writes
// ---------------------------------------------------------------------------

func (s *Syncer) writeItem(productID string, quantity int) {
	if !s.authed() {
		return
	}
	go s.background("item write", func(ctx context.Context) (cart.Items, uint64, error) {
		_, rev := s.store.Snapshot()
		items, err := s.backend.PutItem(ctx, productID, quantity)
		return items, rev, err
	})
}

func (s *Syncer) deleteItem(productID string) {
	if !s.authed() {
		return
	}
	go s.background("item delete", func(ctx context.Context) (cart.Items, uint64, error) {
		_, rev := s.store.Snapshot()
		items, err := s.backend.DeleteItem(ctx, productID)
		return items, rev, err
	})
}

// background runs one fire-and-forget write whose response carries the full
// authoritative cart. The revision captured before the call guards the
// overwrite: if a newer local mutation landed meanwhile, the response is
// dropped and the debounced bulk sync reconciles instead.
func (s *Syncer) background(op string, call func(ctx context.Context) (cart.Items, uint64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SyncTimeout)
	defer cancel()

	items, rev, err := call(ctx)
	if err != nil {
		s.logger.Warn("cart sync failed",
			zap.String("op", op),
			zap.Error(err),
		)
		return
	}
	s.store.ReplaceAllIfRevision(rev, items)
}

// quantityOf reads the current quantity for a product.
func (s *Syncer) quantityOf(productID string) (int, bool) {
	items := s.store.Items()
	if i := items.Find(productID); i >= 0 {
		return items[i].Quantity, true
	}
	return 0, false
}
