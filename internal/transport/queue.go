// Package transport is the lossy-preferred event path from the per-CPU
// stack engine to the renderer, per §4.4. It enqueues whole CallStack
// records and lets the user side poll with a bounded timeout; on overflow
// it drops the newest record and counts it rather than ever blocking the
// probe side.
package transport

import (
	"context"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/mna/retsnoop/internal/engine"
)

// Queue is a single-producer-per-CPU, single-consumer bounded fan-in: each
// CPU gets its own buffered channel (its FIFO order), and Poll selects
// across all of them plus a timeout. It implements engine.Emitter.
type Queue struct {
	perCPU  []chan engine.CallStack
	dropped atomic.Uint64

	selectCases []reflect.SelectCase // cached, indices line up with perCPU
}

// New builds a Queue for numCPU producers, each with capacity slots of
// headroom before records start getting dropped.
func New(numCPU, capacity int) *Queue {
	q := &Queue{perCPU: make([]chan engine.CallStack, numCPU)}
	q.selectCases = make([]reflect.SelectCase, numCPU)
	for i := range q.perCPU {
		q.perCPU[i] = make(chan engine.CallStack, capacity)
		q.selectCases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(q.perCPU[i])}
	}
	return q
}

// Emit enqueues rec for cpu. If cpu's channel is already full, the record
// is dropped and the diagnostic counter incremented; the probe side never
// blocks.
func (q *Queue) Emit(cpu int, rec engine.CallStack) {
	select {
	case q.perCPU[cpu] <- rec:
	default:
		q.dropped.Add(1)
	}
}

// Poll waits up to timeout for the next record, across every CPU, with no
// ordering guarantee between CPUs. A returned ok==false means the timeout
// elapsed with nothing to report; the main loop should then re-check its
// termination flag, per §5.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (cpu int, rec engine.CallStack, ok bool) {
	cases := make([]reflect.SelectCase, len(q.selectCases)+2)
	copy(cases, q.selectCases)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	cases[len(q.selectCases)] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)}
	cases[len(q.selectCases)+1] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())}

	chosen, v, recvOK := reflect.Select(cases)
	if chosen >= len(q.selectCases) || !recvOK {
		return 0, engine.CallStack{}, false
	}
	return chosen, v.Interface().(engine.CallStack), true
}

// Dropped returns the number of records dropped to overflow so far.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Close closes every per-CPU channel. Safe to call once, after the engine
// has stopped producing events.
func (q *Queue) Close() {
	for _, c := range q.perCPU {
		close(c)
	}
}
