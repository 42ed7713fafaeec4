package codes

import (
	"errors"
	"sync"

	"github.com/wangyi68/zenox/internal/game"
	"github.com/wangyi68/zenox/internal/storage"
)

// DrainLimit caps how many non-empty batches one Drain call may return
const DrainLimit = 4

// ErrDrainInProgress is returned when another drain holds the game's lock
var ErrDrainInProgress = errors.New("drain already in progress for game")

// Batch is a group of codes discovered together; the codes of one wiki row
// share a single announcement.
type Batch []*storage.Code

// Queue is the per-game FIFO of code batches awaiting staged publication.
// Enqueues may happen at any time; drains are mutually exclusive per game so
// a batch can never be published twice.
type Queue struct {
	mu      sync.Mutex
	batches map[game.Game][]Batch
	drains  map[game.Game]*sync.Mutex
}

// NewQueue creates an empty publish queue
func NewQueue() *Queue {
	q := &Queue{
		batches: make(map[game.Game][]Batch),
		drains:  make(map[game.Game]*sync.Mutex),
	}
	for _, g := range game.All() {
		q.drains[g] = &sync.Mutex{}
	}
	return q
}

// EnqueueBatch appends a batch to the tail of the game's sequence
func (q *Queue) EnqueueBatch(g game.Game, batch Batch) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches[g] = append(q.batches[g], batch)
}

// Len returns the number of queued batches for a game
func (q *Queue) Len(g game.Game) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches[g])
}

// Contains reports whether any queued batch for the game leads with the
// given code string. Used by the wiki poller to avoid re-queueing.
func (q *Queue) Contains(g game.Game, code string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, batch := range q.batches[g] {
		for _, c := range batch {
			if c.Code == code {
				return true
			}
		}
	}
	return false
}

// Drain pops up to limit non-empty batches from the head, oldest first.
// Empty batches are discarded without counting against the limit. Remaining
// batches stay queued in their original order. A concurrent drain for the
// same game fails immediately with ErrDrainInProgress.
func (q *Queue) Drain(g game.Game, limit int) ([]Batch, error) {
	dl, ok := q.drains[g]
	if !ok {
		return nil, errors.New("unknown game")
	}
	if !dl.TryLock() {
		return nil, ErrDrainInProgress
	}
	defer dl.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()

	var drained []Batch
	rest := q.batches[g]
	for len(rest) > 0 && len(drained) < limit {
		head := rest[0]
		rest = rest[1:]
		if len(head) == 0 {
			continue
		}
		drained = append(drained, head)
	}
	q.batches[g] = rest
	return drained, nil
}

// Requeue pushes batches back to the head in their original order. Used
// when a drain's downstream publish could not run at all.
func (q *Queue) Requeue(g game.Game, batches []Batch) {
	if len(batches) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches[g] = append(append([]Batch{}, batches...), q.batches[g]...)
}
