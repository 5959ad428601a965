package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep once a day at 00:00.
const DefaultSchedule = "0 0 0 * * *"

// Scheduler runs the sweep on a cron schedule with a seconds field.
type Scheduler struct {
	manager    *Manager
	logger     *slog.Logger
	cron       *cron.Cron
	runOnStart bool

	running sync.Mutex
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
}

// NewScheduler validates spec and prepares a scheduler. When runOnStart is
// set, Start also sweeps immediately.
func NewScheduler(m *Manager, spec string, runOnStart bool, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	s := &Scheduler{
		manager:    m,
		logger:     logger,
		cron:       cron.New(cron.WithSeconds()),
		runOnStart: runOnStart,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins scheduling.
func (s *Scheduler) Start() {
	s.cron.Start()
	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
}

// Stop halts scheduling, cancels an in-flight sweep, and waits for it.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// tick runs one sweep unless the previous one is still going.
func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		s.logger.Warn("sweep still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	s.logger.Info("channel expiry job firing now")
	if _, err := s.manager.Sweep(s.ctx); err != nil {
		s.logger.Error("sweep failed", "err", err)
	}
}
