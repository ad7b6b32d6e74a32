package effects

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SlotState is the lifecycle of one device's effect slot.
type SlotState int

const (
	StateIdle SlotState = iota
	StateRunning
	StateStopping
)

func (s SlotState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// slot tracks one running effect. At most one live slot exists per device
// name at any instant.
type slot struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
	state  SlotState // guarded by Scheduler.mu
}

// Scheduler runs at most one long-lived effect per device name, each on its
// own goroutine, with cooperative cancellation. Stopping a slot blocks until
// its goroutine has fully exited, so a replacement never overlaps the effect
// it supersedes.
type Scheduler struct {
	settings *Settings

	mu    sync.Mutex
	slots map[string]*slot
	locks map[string]*sync.Mutex // serializes Start/Stop per device name

	root   context.Context // poisoned at shutdown
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler reading shared settings each tick.
// Settings may be nil, in which case library defaults apply.
func NewScheduler(settings *Settings) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		settings: settings,
		slots:    make(map[string]*slot),
		locks:    make(map[string]*sync.Mutex),
		root:     ctx,
		cancel:   cancel,
	}
}

// nameLock returns the mutex serializing slot transitions for one name.
func (s *Scheduler) nameLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[name]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[name] = lk
	}
	return lk
}

// Start runs an effect on a light. Parameters are validated first; a
// parameter error never creates a unit.
//
// With forever set, any effect already registered for the light's name is
// fully stopped before the new unit starts, and the new unit ticks until
// cancelled. Backend failures of individual ticks are logged and the loop
// continues. Without forever, exactly one tick runs synchronously, nothing
// is tracked, and every error is returned to the caller.
func (s *Scheduler) Start(ctx context.Context, light Light, effect Effect, p Params, forever bool) error {
	if err := effect.Validate(p); err != nil {
		return err
	}

	if !forever {
		return effect.Tick(ctx, light, p.resolve(s.settings))
	}

	name := light.Name()
	lk := s.nameLock(name)
	lk.Lock()
	defer lk.Unlock()

	// Replace semantics: the old unit is gone before the new one exists.
	s.stopLocked(name)

	// The poisoned check and the registration share one critical section so
	// a concurrent Shutdown cannot clear the map between them.
	s.mu.Lock()
	if s.root.Err() != nil {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	runCtx, cancel := context.WithCancel(s.root)
	sl := &slot{
		id:     uuid.New(),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateRunning,
	}
	s.slots[name] = sl
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(runCtx, sl, name, light, effect, p)
	return nil
}

// run is the per-slot goroutine: check cancellation, tick, repeat.
func (s *Scheduler) run(ctx context.Context, sl *slot, name string, light Light, effect Effect, p Params) {
	defer s.wg.Done()
	defer close(sl.done)
	// The unit removes its own slot, so a unit whose registration raced a
	// Shutdown cannot linger in the map after it exits.
	defer func() {
		s.mu.Lock()
		if s.slots[name] == sl {
			delete(s.slots, name)
		}
		s.mu.Unlock()
	}()

	logger := log.With().
		Str("run_id", sl.id.String()).
		Str("bulb", name).
		Str("effect", effect.Name()).
		Logger()
	logger.Debug().Msg("Effect started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Effect stopped")
			return
		default:
		}

		r := p.resolve(s.settings)
		if err := effect.Tick(ctx, light, r); err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-tick; not a failure.
				logger.Debug().Msg("Effect stopped")
				return
			}
			// Transient backend trouble must not kill a long-running
			// effect. Back off one interval before retrying.
			logger.Warn().Err(err).Msg("Effect tick failed")
			_ = sleep(ctx, r.Interval)
		}
	}
}

// Stop cancels the effect registered for name and blocks until its goroutine
// has exited. Unknown names are a no-op.
func (s *Scheduler) Stop(name string) {
	lk := s.nameLock(name)
	lk.Lock()
	defer lk.Unlock()
	s.stopLocked(name)
}

// stopLocked requires the per-name lock to be held.
func (s *Scheduler) stopLocked(name string) {
	s.mu.Lock()
	sl, ok := s.slots[name]
	if ok {
		sl.state = StateStopping
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	sl.cancel()
	<-sl.done

	s.mu.Lock()
	if s.slots[name] == sl {
		delete(s.slots, name)
	}
	s.mu.Unlock()
}

// State reports the slot state for a device name.
func (s *Scheduler) State(name string) SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[name]; ok {
		return sl.state
	}
	return StateIdle
}

// Active returns the names with a live slot.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	return names
}

// Shutdown poisons the scheduler: every unit is cancelled, no new unit may
// start, and the call blocks until all units have exited or ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	// Cancelling under the registration lock orders the poisoning against
	// every in-flight Start: a unit either registered before this point and
	// gets cancelled, or observes the poisoned context and is rejected.
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.mu.Lock()
		s.slots = make(map[string]*slot)
		s.mu.Unlock()
		log.Debug().Msg("All effects stopped")
		return nil
	case <-ctx.Done():
		log.Warn().Msg("Shutdown timed out waiting for effects")
		return ctx.Err()
	}
}
