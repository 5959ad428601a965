// Package backup periodically exports channel records as JSONL to S3 and
// git destinations.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/chanbot/internal/store"
)

// Destination receives each export.
type Destination interface {
	Name() string
	// Write stores the JSONL payload, replacing the previous export.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic backups to one or more destinations.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic backups. It runs one immediately, then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current backup to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.Once(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Once(ctx)
		}
	}
}

// Once exports the store and writes the payload to every destination.
// Destination failures are logged and counted in the returned error.
func (s *Scheduler) Once(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		s.logger.Error("backup export failed", "err", err)
		return err
	}
	data := buf.Bytes()

	failed := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			failed++
			s.logger.Error("backup destination write failed", "destination", dest.Name(), "err", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("backup: %d of %d destinations failed", failed, len(s.destinations))
	}

	s.logger.Info("backup completed", "destinations", len(s.destinations), "bytes", len(data))
	return nil
}
