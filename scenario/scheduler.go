package scenario

import "context"

type System interface {
	Update(ctx context.Context, sim *Simulator) error
}

type SystemFunc func(ctx context.Context, sim *Simulator) error

func (f SystemFunc) Update(ctx context.Context, sim *Simulator) error {
	return f(ctx, sim)
}

// Scheduler runs its systems in the order they were added. A failing
// system ends the tick.
type Scheduler struct {
	systems []System
}

func NewScheduler(systems ...System) *Scheduler {
	copied := append([]System(nil), systems...)
	return &Scheduler{systems: copied}
}

func (s *Scheduler) Add(system System) {
	if system == nil {
		return
	}
	s.systems = append(s.systems, system)
}

func (s *Scheduler) Update(ctx context.Context, sim *Simulator) error {
	for _, system := range s.systems {
		if err := system.Update(ctx, sim); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) Systems() []System {
	systems := make([]System, 0, len(s.systems))
	return append(systems, s.systems...)
}
