package bridge

import (
	"io"
	"sort"
	"sync"

	"github.com/viam-modules/aruco-bridge/cverr"
)

// Handle identifies an object owned by the host. Zero is never issued.
type Handle uint64

// table owns the objects behind handles. Handles are never reused, so a
// stale handle fails lookup instead of reaching another object.
type table[T io.Closer] struct {
	mu    sync.Mutex
	kind  string
	next  Handle
	items map[Handle]T
}

func newTable[T io.Closer](kind string) *table[T] {
	return &table[T]{kind: kind, items: make(map[Handle]T)}
}

func (t *table[T]) put(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[T]) get(op string, h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	if !ok {
		var zero T
		return zero, cverr.New(cverr.InvalidHandle, op, "unknown %s handle %d", t.kind, h)
	}
	return v, nil
}

// take removes h and closes its object.
func (t *table[T]) take(op string, h Handle) error {
	t.mu.Lock()
	v, ok := t.items[h]
	delete(t.items, h)
	t.mu.Unlock()
	if !ok {
		return cverr.New(cverr.InvalidHandle, op, "unknown %s handle %d", t.kind, h)
	}
	return cverr.Wrap(cverr.Internal, op, v.Close())
}

func (t *table[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// closeAll closes every live object in handle order and returns the first
// error.
func (t *table[T]) closeAll() error {
	t.mu.Lock()
	handles := make([]Handle, 0, len(t.items))
	for h := range t.items {
		handles = append(handles, h)
	}
	t.mu.Unlock()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	var first error
	for _, h := range handles {
		if err := t.take("closeAll", h); err != nil && first == nil {
			first = err
		}
	}
	return first
}
