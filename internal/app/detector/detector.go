package detector

import (
	"sync"

	"github.com/schoolchow/notifier/internal/contracts"
)

// Result kinds for a single observation.
const (
	KindSeeded     = "seeded"
	KindNoChange   = "no_change"
	KindTransition = "transition"
)

// Result classifies one observed order status against the cache.
type Result struct {
	Kind string
	From string
	To   string
}

func (r Result) IsTransition() bool { return r.Kind == KindTransition }

// StatusStore maps order id to last-known status. The in-memory default is
// process-local; a shared store can be swapped in without touching rule
// logic.
type StatusStore interface {
	Get(orderID string) (string, bool)
	Set(orderID, status string)
}

// MemoryStore is the default StatusStore, rebuilt from the bootstrap
// snapshot on every start.
type MemoryStore struct {
	mu    sync.RWMutex
	state map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]string)}
}

func (s *MemoryStore) Get(orderID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.state[orderID]
	return status, ok
}

func (s *MemoryStore) Set(orderID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[orderID] = status
}

// Detector derives true before/after transitions from a feed that carries no
// prior value. Observations before the bootstrap snapshot has been ingested
// only seed the cache; nothing is ever emitted for pre-existing data.
type Detector struct {
	mu     sync.Mutex
	store  StatusStore
	seeded bool
}

func New(store StatusStore) *Detector {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Detector{store: store}
}

// Seed ingests the bootstrap snapshot: every order's status is cached and no
// transition is produced for it.
func (d *Detector) Seed(orders []contracts.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, order := range orders {
		d.store.Set(order.ID, order.Status)
	}
	d.seeded = true
}

// Observe compares newStatus to the cached value, updates the cache
// unconditionally, and reports what happened. An order first seen through a
// modified event defaults its prior status to cart: added and modified can
// race on the feed.
func (d *Detector) Observe(orderID, newStatus string) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.seeded {
		d.store.Set(orderID, newStatus)
		return Result{Kind: KindSeeded, To: newStatus}
	}

	before, ok := d.store.Get(orderID)
	if !ok {
		before = contracts.StatusCart
	}
	d.store.Set(orderID, newStatus)

	if before == newStatus {
		return Result{Kind: KindNoChange, From: before, To: newStatus}
	}
	return Result{Kind: KindTransition, From: before, To: newStatus}
}
