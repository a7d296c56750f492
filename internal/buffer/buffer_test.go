package buffer

import (
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

func sampleWrite(action revision.Action, version uint64) Write {
	return New(action, byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), version)
}

func TestAppendAddThenRemoveSameVersionCancels(t *testing.T) {
	q := NewToggleQueue(10)
	if _, err := q.Append(sampleWrite(revision.Add, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := q.Append(sampleWrite(revision.Remove, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected toggle cancellation, got %d pending", q.Len())
	}
}

func TestAppendDifferentVersionsDoNotCancel(t *testing.T) {
	q := NewToggleQueue(10)
	if _, err := q.Append(sampleWrite(revision.Add, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := q.Append(sampleWrite(revision.Remove, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected both writes to survive, got %d", q.Len())
	}
}

func TestAppendSignalsDrainAtPageSize(t *testing.T) {
	q := NewToggleQueue(2)
	drain, err := q.Append(sampleWrite(revision.Add, 1))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if drain {
		t.Fatalf("did not expect drain signal yet")
	}
	drain, err = q.Append(New(revision.Add, byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("bob"), 2))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !drain {
		t.Fatalf("expected drain signal at page size")
	}
}

func TestDrainReturnsWritesInOrderAndEmpties(t *testing.T) {
	q := NewToggleQueue(10)
	w1 := sampleWrite(revision.Add, 1)
	w2 := New(revision.Add, byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("bob"), 2)
	q.Append(w1)
	q.Append(w2)

	drained := q.Drain()
	if len(drained) != 2 || drained[0].Version != 1 || drained[1].Version != 2 {
		t.Fatalf("expected ordered drain, got %+v", drained)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after drain")
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	q := NewToggleQueue(10)
	q.Close()
	if _, err := q.Append(sampleWrite(revision.Add, 1)); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestEncodeDecodeLogRoundTrip(t *testing.T) {
	q := NewToggleQueue(10)
	q.Append(sampleWrite(revision.Add, 1))
	q.Append(New(revision.Add, byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("bob"), 2))

	data := q.EncodeLog()
	writes, err := DecodeLog(data)
	if err != nil {
		t.Fatalf("DecodeLog: %v", err)
	}
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writes))
	}
	if writes[0].Version != 1 || writes[1].Version != 2 {
		t.Fatalf("unexpected decoded writes: %+v", writes)
	}
}

func TestInverseFlipsAction(t *testing.T) {
	w := sampleWrite(revision.Add, 1)
	inv := w.Inverse()
	if inv.Action != revision.Remove {
		t.Fatalf("expected Remove, got %v", inv.Action)
	}
	if inv.Locator != w.Locator || inv.Version != w.Version {
		t.Fatalf("Inverse must preserve every other field")
	}
}

func TestRewriteReplacesVersionOnly(t *testing.T) {
	w := sampleWrite(revision.Add, 1)
	rw := w.Rewrite(42)
	if rw.Version != 42 || rw.Action != w.Action || rw.Locator != w.Locator {
		t.Fatalf("Rewrite must only change Version")
	}
}
