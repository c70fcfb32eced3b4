package detector

import (
	"sync"

	"github.com/schoolchow/notifier/internal/sharding"
)

// Lanes serializes work per order while letting distinct orders proceed in
// parallel. Events for one order id always land on one lane, so the detector
// sees them in arrival order.
type Lanes struct {
	mu     sync.RWMutex
	closed bool
	queues []chan func()
	wg     sync.WaitGroup
}

func NewLanes(workers, depth int) *Lanes {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = 64
	}
	l := &Lanes{queues: make([]chan func(), workers)}
	for i := range l.queues {
		q := make(chan func(), depth)
		l.queues[i] = q
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for fn := range q {
				fn()
			}
		}()
	}
	return l
}

// Submit blocks when the target lane is full, which back-pressures the feed
// subscription instead of dropping events. Work submitted after Close is
// dropped: during shutdown a late feed message must not crash the process.
func (l *Lanes) Submit(orderID string, fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	lane := sharding.GetShardID(orderID) % len(l.queues)
	l.queues[lane] <- fn
}

// Close stops accepting work and waits for in-flight work to finish. It is
// safe to call more than once.
func (l *Lanes) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	for _, q := range l.queues {
		close(q)
	}
	l.mu.Unlock()
	l.wg.Wait()
}
