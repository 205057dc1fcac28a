// Package session owns the runtime shared by every navigating agent: the
// logger, the simulation tick, the agent registry and the two worker pools.
// A Session lives from simulation start to stop; nothing here is global.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/milk9111/autopilot/config"
	"go.uber.org/zap"
)

// Agent is anything that steps once per tick on the interactive pool.
type Agent interface {
	ID() uuid.UUID
	Run()
}

type Session struct {
	id  uuid.UUID
	log *zap.Logger
	cfg config.SessionConfig

	ctx    context.Context
	cancel context.CancelFunc

	interactive *Pool
	background  *Pool

	tick atomic.Uint64

	mu     sync.RWMutex
	agents map[uuid.UUID]Agent
	order  []uuid.UUID
}

func New(ctx context.Context, cfg config.SessionConfig, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.New()
	log = log.With(zap.String("session", id.String()))

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     id,
		log:    log,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		agents: make(map[uuid.UUID]Agent),
	}
	s.interactive = NewPool(ctx, "interactive", cfg.Parallelism, cfg.QueueSize, log)
	s.background = NewPool(ctx, "background", cfg.Parallelism, cfg.QueueSize, log)

	log.Info("session started",
		zap.Int("parallelism", cfg.Parallelism),
		zap.Int("queue_size", cfg.QueueSize))
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Logger() *zap.Logger {
	if s == nil {
		return zap.NewNop()
	}
	return s.log
}

// Tick is the number of completed Advance calls.
func (s *Session) Tick() uint64 {
	if s == nil {
		return 0
	}
	return s.tick.Load()
}

func (s *Session) Interactive(fn func()) bool {
	if s == nil {
		return false
	}
	return s.interactive.Enqueue(fn)
}

func (s *Session) Background(fn func()) bool {
	if s == nil {
		return false
	}
	return s.background.Enqueue(fn)
}

func (s *Session) Register(a Agent) error {
	if s == nil || a == nil {
		return fmt.Errorf("session: register nil agent")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID()]; ok {
		return fmt.Errorf("session: agent %s already registered", a.ID())
	}
	s.agents[a.ID()] = a
	s.order = append(s.order, a.ID())
	s.log.Debug("agent registered", zap.String("agent", a.ID().String()))
	return nil
}

func (s *Session) Unregister(id uuid.UUID) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return false
	}
	delete(s.agents, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Agents returns the registered agents in registration order.
func (s *Session) Agents() []Agent {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.agents[id])
	}
	return out
}

// Advance moves the clock forward one tick and queues every agent's Run.
func (s *Session) Advance() uint64 {
	if s == nil {
		return 0
	}
	tick := s.tick.Add(1)
	for _, a := range s.Agents() {
		if !s.interactive.Enqueue(a.Run) {
			s.log.Warn("agent run not queued",
				zap.String("agent", a.ID().String()),
				zap.Uint64("tick", tick))
		}
	}
	return tick
}

// Settle waits for the interactive work queued so far.
func (s *Session) Settle(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.interactive.Settle(ctx)
}

// Err returns the first task failure without stopping the session.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	for _, p := range []*Pool{s.interactive, s.background} {
		select {
		case <-p.Stopped():
			if err := context.Cause(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		default:
		}
	}
	return nil
}

// Close stops both pools and returns the first task failure.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.cancel()
	err := errors.Join(s.interactive.Wait(), s.background.Wait())
	s.log.Info("session stopped", zap.Uint64("ticks", s.Tick()), zap.Error(err))
	return err
}
