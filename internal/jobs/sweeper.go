package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/akmatori/incidentwatch/internal/logging"
)

// Sweepable drops analyzed thread state older than its retention window.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper periodically sweeps the analysis scheduler on a cron schedule.
type Sweeper struct {
	target Sweepable
	cron   *cron.Cron
	now    func() time.Time
}

// NewSweeper creates a sweeper running on spec, which accepts standard
// five-field expressions and descriptors such as "@every 1m".
func NewSweeper(target Sweepable, spec string) (*Sweeper, error) {
	s := &Sweeper{
		target: target,
		cron:   cron.New(cron.WithLogger(cron.PrintfLogger(logging.StdLogger(slog.Default(), "cron")))),
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce() {
	if removed := s.target.Sweep(s.now()); removed > 0 {
		slog.Debug("swept analyzed threads", "removed", removed)
	}
}

// Start begins the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("schedule sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	slog.Info("schedule sweeper stopped")
}
