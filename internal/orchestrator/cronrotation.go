package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/cinchapi/concourse-kernel/internal/lock"
	"github.com/cinchapi/concourse-kernel/internal/logging"
	"github.com/cinchapi/concourse-kernel/internal/manifest"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the kernel's periodic background maintenance as gocron cron
// jobs: a LockBroker's idle-entry eviction sweep and a Manifest's
// soft-reference reap, each named and tracked by job name so a later
// RemoveJob can target it individually. Grounded on the teacher's
// cronRotationManager, generalized from one job-per-store to one
// job-per-maintenance-task.
type Scheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job // job name → job
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler with no jobs registered yet; call Start
// once all jobs have been added.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	logger = logging.Default(logger)
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create cron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		logger:    logger.With("component", "orchestrator"),
	}, nil
}

// AddBrokerSweep registers a periodic LockBroker.Sweep call under cronExpr.
func (s *Scheduler) AddBrokerSweep(name, cronExpr string, broker *lock.LockBroker) error {
	return s.addJob(name, cronExpr, func() {
		records, ranges := broker.Sweep()
		if records > 0 || ranges > 0 {
			s.logger.Debug("lock broker sweep removed stale entries",
				"job", name, "records", records, "ranges", ranges)
		}
	})
}

// AddManifestReap registers a periodic Manifest.Reap call under cronExpr.
func (s *Scheduler) AddManifestReap(name, cronExpr string, m *manifest.Manifest) error {
	return s.addJob(name, cronExpr, func() {
		m.Reap()
		s.logger.Debug("manifest soft-reference reap ran", "job", name)
	})
}

func (s *Scheduler) addJob(name, cronExpr string, task func()) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("orchestrator: job %q already registered", name)
	}
	j, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("orchestrator: create job %q: %w", name, err)
	}
	s.jobs[name] = j
	s.logger.Info("job registered", "job", name, "cron", cronExpr)
	return nil
}

// RemoveJob stops and removes a previously registered job.
func (s *Scheduler) RemoveJob(name string) {
	j, ok := s.jobs[name]
	if !ok {
		return
	}
	if err := s.scheduler.RemoveJob(j.ID()); err != nil {
		s.logger.Warn("failed to remove job", "job", name, "error", err)
	}
	delete(s.jobs, name)
	s.logger.Info("job removed", "job", name)
}

// Start begins executing all registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop shuts down the scheduler and waits for any running jobs to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
