// Package supervisor keeps a fixed number of worker processes alive. A worker
// that exits for any reason is replaced; the supervisor itself only stops
// when its context is canceled.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultSpawnRetry    = time.Second
	defaultShutdownGrace = 15 * time.Second
)

// Config configures a Supervisor.
type Config struct {
	Workers int
	Spawner Spawner
	Policy  Policy
	Logger  *zerolog.Logger
	// SpawnRetry is the pause after a failed spawn before trying again.
	SpawnRetry time.Duration
	// ShutdownGrace bounds how long a worker may take to exit after SIGTERM
	// before it is killed.
	ShutdownGrace time.Duration
}

// Supervisor runs Workers slots, each holding one worker process at a time.
type Supervisor struct {
	workers       int
	spawner       Spawner
	policy        Policy
	log           zerolog.Logger
	spawnRetry    time.Duration
	shutdownGrace time.Duration
	live          *workerSet

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Supervisor. Workers below 1 is treated as 1.
func New(cfg Config) *Supervisor {
	s := &Supervisor{
		workers:       cfg.Workers,
		spawner:       cfg.Spawner,
		policy:        cfg.Policy,
		log:           zerolog.Nop(),
		spawnRetry:    cfg.SpawnRetry,
		shutdownGrace: cfg.ShutdownGrace,
		live:          newWorkerSet(),
		sleep:         sleepCtx,
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "supervisor").Logger()
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.spawner == nil {
		s.spawner = ExecSpawner{}
	}
	if s.spawnRetry <= 0 {
		s.spawnRetry = defaultSpawnRetry
	}
	if s.shutdownGrace <= 0 {
		s.shutdownGrace = defaultShutdownGrace
	}
	return s
}

// Pids returns the pid of the live worker in each slot.
func (s *Supervisor) Pids() map[int]int { return s.live.pids() }

// Run supervises the workers until ctx is canceled, then sends SIGTERM to
// every live worker and waits for them to exit. It returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info().Int("workers", s.workers).Bool("crash_loop_policy", s.policy.Enabled()).Msg("supervisor starting")
	var wg sync.WaitGroup
	for slot := 0; slot < s.workers; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			s.supervise(ctx, slot)
		}(slot)
	}
	wg.Wait()
	s.log.Info().Msg("supervisor stopped")
	return ctx.Err()
}

func (s *Supervisor) supervise(ctx context.Context, slot int) {
	log := s.log.With().Int("slot", slot).Logger()
	bo := newBackoff(s.policy)
	for {
		if ctx.Err() != nil {
			return
		}
		w, err := s.spawner.Spawn(ctx, slot)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			spawnFailures.Inc()
			log.Error().Err(err).Dur("retry_in", s.spawnRetry).Msg("worker spawn failed")
			if s.sleep(ctx, s.spawnRetry) != nil {
				return
			}
			continue
		}
		s.live.add(slot, w)
		log.Info().Int("pid", w.Pid()).Msg("worker started")

		exited := make(chan error, 1)
		go func() { exited <- w.Wait() }()

		select {
		case err := <-exited:
			s.live.remove(slot)
			if ctx.Err() != nil {
				return
			}
			workerRestarts.Inc()
			ev := log.Warn().Int("pid", w.Pid()).Int("code", ExitCode(err))
			if err != nil && !isExitStatus(err) {
				ev = ev.Err(err)
			}
			ev.Msg("worker exited, restarting")
			if d := bo.next(); d > 0 {
				log.Warn().Dur("delay", d).Msg("worker crash loop, delaying restart")
				if s.sleep(ctx, d) != nil {
					return
				}
			}
		case <-ctx.Done():
			s.stopWorker(log, w, exited)
			s.live.remove(slot)
			return
		}
	}
}

func (s *Supervisor) stopWorker(log zerolog.Logger, w Worker, exited <-chan error) {
	log.Info().Int("pid", w.Pid()).Msg("stopping worker")
	_ = w.Signal(syscall.SIGTERM)
	t := time.NewTimer(s.shutdownGrace)
	defer t.Stop()
	select {
	case err := <-exited:
		log.Info().Int("pid", w.Pid()).Int("code", ExitCode(err)).Msg("worker stopped")
		return
	case <-t.C:
	}
	log.Warn().Int("pid", w.Pid()).Dur("grace", s.shutdownGrace).Msg("worker ignored SIGTERM, killing")
	_ = w.Signal(syscall.SIGKILL)
	<-exited
}

func isExitStatus(err error) bool {
	var ee interface{ ExitCode() int }
	return errors.As(err, &ee)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
