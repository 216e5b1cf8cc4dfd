package sim

import (
	"container/heap"
	"time"

	"github.com/railops/dispatchd/core/model"
)

type eventKind int

const (
	evEntry eventKind = iota
	evExit
	evDisruptStart
	evDisruptEnd
)

type event struct {
	at         time.Time
	kind       eventKind
	train      string
	index      int // reservation index within the train's sequence
	disruption model.DisruptionEvent
	seq        int
}

// eventQueue orders events by time; the insertion sequence breaks ties so
// replays are deterministic.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

var _ heap.Interface = (*eventQueue)(nil)
