package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTaskPanicked wraps a panic raised by a queued task.
var ErrTaskPanicked = errors.New("session: task panicked")

// Pool runs queued tasks on a fixed set of workers. A panicking task stops
// the whole pool and its error is returned from Wait.
type Pool struct {
	name  string
	log   *zap.Logger
	tasks chan func()
	group *errgroup.Group
	ctx   context.Context

	mu      sync.Mutex
	pending int
	idle    []chan struct{}
}

func NewPool(ctx context.Context, name string, workers, queueSize int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		name:  name,
		log:   log.With(zap.String("pool", name)),
		tasks: make(chan func(), queueSize),
		group: group,
		ctx:   gctx,
	}
	for i := 0; i < workers; i++ {
		group.Go(p.work)
	}
	return p
}

func (p *Pool) work() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case fn := <-p.tasks:
			err := p.run(fn)
			p.finish()
			if err != nil {
				return err
			}
		}
	}
}

func (p *Pool) run(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrTaskPanicked, p.name, r)
			p.log.Error("task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
	return nil
}

func (p *Pool) begin() {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
}

func (p *Pool) finish() {
	p.mu.Lock()
	p.pending--
	if p.pending == 0 {
		for _, ch := range p.idle {
			close(ch)
		}
		p.idle = nil
	}
	p.mu.Unlock()
}

// idleCh is closed once no task is queued or running.
func (p *Pool) idleCh() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{})
	if p.pending == 0 {
		close(ch)
		return ch
	}
	p.idle = append(p.idle, ch)
	return ch
}

// Enqueue queues fn without blocking. It reports false if the pool is full
// or stopped.
func (p *Pool) Enqueue(fn func()) bool {
	if p == nil || fn == nil {
		return false
	}
	if p.ctx.Err() != nil {
		return false
	}
	p.begin()
	select {
	case p.tasks <- fn:
		return true
	default:
		p.finish()
		p.log.Warn("queue full, task dropped", zap.Int("capacity", cap(p.tasks)))
		return false
	}
}

// Settle blocks until every task queued so far has finished. It returns the
// pool's stop cause if the pool stopped first.
func (p *Pool) Settle(ctx context.Context) error {
	if p == nil {
		return nil
	}
	select {
	case <-p.idleCh():
		return nil
	case <-p.ctx.Done():
		return context.Cause(p.ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain discards tasks left in the queue after the workers stopped.
func (p *Pool) drain() {
	for {
		select {
		case <-p.tasks:
			p.finish()
		default:
			return
		}
	}
}

// Wait blocks until the workers stop and returns the first task error.
// Workers stop when the parent context is cancelled or a task panics.
func (p *Pool) Wait() error {
	if p == nil {
		return nil
	}
	err := p.group.Wait()
	p.drain()
	return err
}

// Stopped is closed once the pool stops accepting work.
func (p *Pool) Stopped() <-chan struct{} {
	return p.ctx.Done()
}

func (p *Pool) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}
