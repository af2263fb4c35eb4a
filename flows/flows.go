// Package flows groups records that share a flow key into
// conversations.
package flows

import (
	"github.com/packline/packline/utils"
	"github.com/puzpuzpuz/xsync/v3"
)

type Conversation struct {
	Key     uint64
	First   uint64 // lowest record seq seen
	Last    uint64 // highest record seq counted
	Packets uint64
}

// Table is the session-scoped conversation registry. Rows look their
// conversation up fresh on every dissection and hold the result only
// transiently; the table owns all Conversation objects. The map is a
// concurrent one because live ingest may touch it while the render
// thread reads.
type Table struct {
	m *xsync.MapOf[uint64, *Conversation]
}

func NewTable() *Table {
	return &Table{m: xsync.NewMapOf[uint64, *Conversation]()}
}

// Lookup finds or creates the conversation for key and counts seq into
// it. Re-dissecting a record does not double-count: only a seq above
// the conversation's high-water mark increments the packet count.
func (t *Table) Lookup(key, seq uint64) *Conversation {
	fresh := &Conversation{Key: key, First: seq, Last: seq, Packets: 1}
	conv, loaded := t.m.LoadOrStore(key, fresh)
	if !loaded {
		return conv
	}
	if seq > conv.Last {
		conv.Last = seq
		conv.Packets++
	} else if seq < conv.First {
		conv.First = seq
	}
	return conv
}

func (t *Table) Len() int {
	return t.m.Size()
}

func (t *Table) Range(fn func(conv *Conversation) bool) {
	t.m.Range(func(_ uint64, conv *Conversation) bool {
		return fn(conv)
	})
}

// TopCounts returns the n largest per-conversation packet counts in
// descending order, via a bounded min-heap.
func (t *Table) TopCounts(n int) []uint64 {
	if n <= 0 {
		return nil
	}
	var heap utils.Heap[uint64]
	t.m.Range(func(_ uint64, conv *Conversation) bool {
		heap.Push(conv.Packets)
		if heap.Len() > n {
			heap.Pop()
		}
		return true
	})
	counts := make([]uint64, heap.Len())
	for i := heap.Len() - 1; i >= 0; i-- {
		counts[i] = heap.Pop()
	}
	return counts
}

// Reset drops all conversations, e.g. at session teardown.
func (t *Table) Reset() {
	t.m.Clear()
}
