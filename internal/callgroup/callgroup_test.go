package callgroup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentMissesOnSameKeyCoalesce(t *testing.T) {
	var g Group[string]
	var fills atomic.Int32
	started := make(chan struct{})

	fn := func() error {
		fills.Add(1)
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)

	// First caller triggers the fill.
	wg.Go(func() {
		errs[0] = <-g.DoChan("composite-1", fn)
	})

	// Wait for the fill to start, then pile on as if several readers
	// missed the same composite's cache entry at once.
	<-started
	for i := 1; i < n; i++ {
		wg.Go(func() {
			errs[i] = <-g.DoChan("composite-1", fn)
		})
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d got error: %v", i, err)
		}
	}
	if got := fills.Load(); got != 1 {
		t.Errorf("fill ran %d times, want 1", got)
	}
}

func TestDistinctKeysFillIndependently(t *testing.T) {
	var g Group[string]
	var fills atomic.Int32

	fn := func() error {
		fills.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"composite-1", "composite-2", "composite-3"} {
		wg.Go(func() {
			<-g.DoChan(key, fn)
		})
	}

	wg.Wait()

	if got := fills.Load(); got != 3 {
		t.Errorf("fill ran %d times, want 3", got)
	}
}

func TestJoiningCallerReceivesInFlightResult(t *testing.T) {
	var g Group[string]
	started := make(chan struct{})

	fn := func() error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	ch1 := g.DoChan("composite-1", fn)
	<-started

	// Joins the fill already in flight; its own fn must never run.
	ch2 := g.DoChan("composite-1", func() error {
		t.Error("joining fn should not execute")
		return errors.New("unexpected")
	})

	err1 := <-ch1
	err2 := <-ch2

	if err1 != nil {
		t.Errorf("caller 1 got error: %v", err1)
	}
	if err2 != nil {
		t.Errorf("caller 2 got error: %v", err2)
	}
}

func TestFillErrorPropagatesToJoiningCallers(t *testing.T) {
	var g Group[string]
	sentinel := errors.New("region read failed")
	started := make(chan struct{})

	ch1 := g.DoChan("composite-1", func() error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return sentinel
	})
	<-started

	ch2 := g.DoChan("composite-1", func() error {
		t.Error("should not execute")
		return nil
	})

	err1 := <-ch1
	err2 := <-ch2

	if !errors.Is(err1, sentinel) {
		t.Errorf("caller 1: got %v, want %v", err1, sentinel)
	}
	if !errors.Is(err2, sentinel) {
		t.Errorf("caller 2: got %v, want %v", err2, sentinel)
	}
}

func TestKeyForgottenAfterFillCompletes(t *testing.T) {
	var g Group[string]
	var fills atomic.Int32

	fn := func() error {
		fills.Add(1)
		return nil
	}

	if err := <-g.DoChan("composite-1", fn); err != nil {
		t.Fatalf("first fill: %v", err)
	}

	// A later miss on the same key must trigger a fresh fill, not replay
	// the earlier one's (by-then-discarded) result.
	if err := <-g.DoChan("composite-1", fn); err != nil {
		t.Fatalf("second fill: %v", err)
	}

	if got := fills.Load(); got != 2 {
		t.Errorf("fill ran %d times, want 2", got)
	}
}
