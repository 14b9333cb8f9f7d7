package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"thumbnailer/internal/worker"
)

type StatsSource interface {
	Stats() worker.Stats
}

// Scheduler logs worker outcome counters on a cron schedule (with seconds).
type Scheduler struct {
	cron     *cron.Cron
	source   StatsSource
	schedule string
	log      zerolog.Logger

	mu   sync.Mutex
	last worker.Stats
}

func NewScheduler(source StatsSource, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		source:   source,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.source == nil || s.schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.reportStats); err != nil {
		return fmt.Errorf("schedule stats report %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits up to timeout for a running report.
func (s *Scheduler) Stop(timeout time.Duration) {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(timeout):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) reportStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.source.Stats()
	s.log.Info().
		Int64("succeeded", now.Succeeded).
		Int64("skipped", now.Skipped).
		Int64("failed", now.Failed).
		Int64("succeeded_delta", now.Succeeded-s.last.Succeeded).
		Int64("failed_delta", now.Failed-s.last.Failed).
		Msg("worker stats")
	s.last = now
}
