package orchestrator

import (
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/lock"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func TestAddBrokerSweepRegistersJob(t *testing.T) {
	s := newTestScheduler(t)
	broker := lock.NewBroker()
	if err := s.AddBrokerSweep("broker-sweep", "* * * * *", broker); err != nil {
		t.Fatalf("AddBrokerSweep: %v", err)
	}
	if _, ok := s.jobs["broker-sweep"]; !ok {
		t.Fatalf("expected job to be registered")
	}
}

func TestAddBrokerSweepRejectsDuplicateName(t *testing.T) {
	s := newTestScheduler(t)
	broker := lock.NewBroker()
	if err := s.AddBrokerSweep("broker-sweep", "* * * * *", broker); err != nil {
		t.Fatalf("AddBrokerSweep: %v", err)
	}
	if err := s.AddBrokerSweep("broker-sweep", "0 * * * *", broker); err == nil {
		t.Fatalf("expected error registering a duplicate job name")
	}
}

func TestAddManifestReapRegistersJob(t *testing.T) {
	s := newTestScheduler(t)
	m := manifest.New()
	if err := s.AddManifestReap("manifest-reap", "* * * * *", m); err != nil {
		t.Fatalf("AddManifestReap: %v", err)
	}
	if _, ok := s.jobs["manifest-reap"]; !ok {
		t.Fatalf("expected job to be registered")
	}
}

func TestRemoveJobIsIdempotent(t *testing.T) {
	s := newTestScheduler(t)
	broker := lock.NewBroker()
	if err := s.AddBrokerSweep("broker-sweep", "* * * * *", broker); err != nil {
		t.Fatalf("AddBrokerSweep: %v", err)
	}
	s.RemoveJob("broker-sweep")
	if _, ok := s.jobs["broker-sweep"]; ok {
		t.Fatalf("expected job to be removed")
	}
	s.RemoveJob("broker-sweep") // no-op, must not panic
}

func TestAddJobRejectsInvalidCron(t *testing.T) {
	s := newTestScheduler(t)
	broker := lock.NewBroker()
	if err := s.AddBrokerSweep("broker-sweep", "not a cron expression", broker); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
	if _, ok := s.jobs["broker-sweep"]; ok {
		t.Fatalf("expected no job to be registered for an invalid cron expression")
	}
}

func TestStartAndStop(t *testing.T) {
	s := newTestScheduler(t)
	broker := lock.NewBroker()
	if err := s.AddBrokerSweep("broker-sweep", "* * * * *", broker); err != nil {
		t.Fatalf("AddBrokerSweep: %v", err)
	}
	s.Start()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
