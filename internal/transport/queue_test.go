package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/transport"
)

func TestQueueFIFOPerCPU(t *testing.T) {
	q := transport.New(2, 4)
	defer q.Close()

	first := engine.CallStack{PID: 1}
	second := engine.CallStack{PID: 2}
	q.Emit(0, first)
	q.Emit(0, second)

	cpu, rec, ok := q.Poll(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, 0, cpu)
	assert.Equal(t, uint32(1), rec.PID)

	_, rec, ok = q.Poll(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, uint32(2), rec.PID)
}

func TestQueueOverflowDropsAndCounts(t *testing.T) {
	q := transport.New(1, 1)
	defer q.Close()

	q.Emit(0, engine.CallStack{PID: 1})
	q.Emit(0, engine.CallStack{PID: 2}) // dropped: capacity 1 already full

	assert.Equal(t, uint64(1), q.Dropped())

	_, rec, ok := q.Poll(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, uint32(1), rec.PID)
}

func TestQueuePollTimesOut(t *testing.T) {
	q := transport.New(1, 1)
	defer q.Close()

	_, _, ok := q.Poll(context.Background(), 10*time.Millisecond)
	assert.False(t, ok)
}
