package buffer

import (
	"github.com/radmon/devclient/internal/reading"
)

// Queue is in-memory FIFO mirror of File. Not safe for concurrent use.
type Queue struct {
	items []reading.Reading
	dirty bool
}

func NewQueue(items []reading.Reading) *Queue {
	q := &Queue{items: make([]reading.Reading, 0, len(items))}
	q.items = append(q.items, items...)
	return q
}

func (q *Queue) Len() int { return len(q.items) }

// Items returns a copy in FIFO order, oldest first.
func (q *Queue) Items() []reading.Reading {
	out := make([]reading.Reading, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Push(r reading.Reading) {
	q.items = append(q.items, r)
	q.dirty = true
}

// Replace sets retained remainder after flush.
func (q *Queue) Replace(items []reading.Reading) {
	if !sameSeqs(q.items, items) {
		q.dirty = true
	}
	q.items = append(q.items[:0:0], items...)
}

func (q *Queue) Dirty() bool { return q.dirty }
func (q *Queue) MarkClean()  { q.dirty = false }

func sameSeqs(a, b []reading.Reading) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Metadata.Seq != b[i].Metadata.Seq {
			return false
		}
	}
	return true
}
