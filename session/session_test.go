package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/milk9111/autopilot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingAgent struct {
	id   uuid.UUID
	runs atomic.Int32
}

func (a *countingAgent) ID() uuid.UUID { return a.id }
func (a *countingAgent) Run()          { a.runs.Add(1) }

func testConfig() config.SessionConfig {
	return config.SessionConfig{Parallelism: 2, QueueSize: 64, TickRate: 60}
}

func TestSessionAdvanceRunsAgents(t *testing.T) {
	s := New(context.Background(), testConfig(), zaptest.NewLogger(t))

	a := &countingAgent{id: uuid.New()}
	b := &countingAgent{id: uuid.New()}
	require.NoError(t, s.Register(a))
	require.NoError(t, s.Register(b))
	assert.Error(t, s.Register(a), "duplicate registration")

	for i := 0; i < 3; i++ {
		s.Advance()
		require.NoError(t, s.Settle(context.Background()))
	}

	assert.Equal(t, uint64(3), s.Tick())
	assert.Equal(t, int32(3), a.runs.Load())
	assert.Equal(t, int32(3), b.runs.Load())

	require.True(t, s.Unregister(b.id))
	s.Advance()
	require.NoError(t, s.Settle(context.Background()))
	assert.Equal(t, int32(4), a.runs.Load())
	assert.Equal(t, int32(3), b.runs.Load())

	require.NoError(t, s.Close())
}

func TestSessionPanicIsReturnedToHost(t *testing.T) {
	s := New(context.Background(), testConfig(), zaptest.NewLogger(t))

	require.True(t, s.Background(func() { panic("corrupt graph") }))

	require.Eventually(t, func() bool { return s.Err() != nil }, 5*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Err(), ErrTaskPanicked)
	assert.False(t, s.Background(func() {}), "stopped pool must refuse work")

	err := s.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskPanicked)
	assert.Contains(t, err.Error(), "corrupt graph")
}

func TestPoolQueueFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(ctx, "tiny", 1, 1, zaptest.NewLogger(t))

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, p.Enqueue(func() {
		close(started)
		<-release
	}))
	<-started
	require.True(t, p.Enqueue(func() {}))
	assert.False(t, p.Enqueue(func() {}), "queue of one is already full")

	close(release)
	require.NoError(t, p.Settle(context.Background()))

	cancel()
	require.NoError(t, p.Wait())
}

func TestPoolSettleRespectsCallerContext(t *testing.T) {
	poolCtx, stop := context.WithCancel(context.Background())
	p := NewPool(poolCtx, "slow", 1, 4, nil)
	release := make(chan struct{})
	require.True(t, p.Enqueue(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Settle(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Settle(context.Background()))

	stop()
	require.NoError(t, p.Wait())
}
