package definition

import (
	"sync"
)

// Notifier keeping the surfaced ids in memory. Embedders translate
// Surface and Cancel into whatever notification area the host
// platform provides, the engine only consumes Cancel and Active.
type MemoryNotifier struct {
	// Synchronization for operations.
	mutex *sync.Mutex

	active map[int64]bool
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{
		mutex:  &sync.Mutex{},
		active: make(map[int64]bool),
	}
}

// Surface registers the id as currently visible.
func (n *MemoryNotifier) Surface(id int64) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.active[id] = true
}

func (n *MemoryNotifier) Cancel(id int64) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.active, id)
}

func (n *MemoryNotifier) Active() []int64 {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	ids := make([]int64, 0, len(n.active))
	for id := range n.active {
		ids = append(ids, id)
	}
	return ids
}

// Notifier for setups without any notification surface at all.
type NoopNotifier struct{}

func (NoopNotifier) Cancel(int64) {}

func (NoopNotifier) Active() []int64 {
	return nil
}
