package scheduler

import (
	"container/heap"
	"sync"

	"github.com/waymirror/waymirror/internal/archive"
	"github.com/waymirror/waymirror/internal/metrics"
)

// frontier is the shared queue of pending crawl work. Pop returns the
// highest-priority, lowest-depth entry; insertion order breaks ties so
// document order survives within one page's discoveries. All operations
// are mutually exclusive; Pop blocks until an entry arrives or the
// frontier closes.
type frontier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   entryHeap
	seq    uint64
	closed bool
}

func newFrontier() *frontier {
	f := &frontier{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push adds an entry. Pushing after Close is a no-op.
func (f *frontier) Push(e archive.FrontierEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.seq++
	heap.Push(&f.heap, frontierItem{entry: e, seq: f.seq})
	metrics.SetFrontierSize(f.heap.Len())
	f.cond.Signal()
}

// Pop blocks until an entry is available or the frontier is closed.
// The second return is false once closed and drained.
func (f *frontier) Pop() (archive.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.heap.Len() == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.heap.Len() == 0 {
		return archive.FrontierEntry{}, false
	}
	item := heap.Pop(&f.heap).(frontierItem)
	metrics.SetFrontierSize(f.heap.Len())
	return item.entry, true
}

// Close wakes all blocked Pops. Entries still queued remain poppable;
// new pushes are dropped.
func (f *frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Len reports the number of queued entries.
func (f *frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

type frontierItem struct {
	entry archive.FrontierEntry
	seq   uint64
}

type entryHeap []frontierItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].entry.Priority != h[j].entry.Priority {
		return h[i].entry.Priority < h[j].entry.Priority
	}
	if h[i].entry.Depth != h[j].entry.Depth {
		return h[i].entry.Depth < h[j].entry.Depth
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(frontierItem))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
