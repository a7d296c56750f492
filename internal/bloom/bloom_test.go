package bloom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
)

func composite(t *testing.T, n int) byteable.Composite {
	t.Helper()
	c, err := byteable.Create(byteable.Text("name"), byteable.NewString(fmt.Sprintf("value-%d", n)), byteable.Identifier(int64(n)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func TestPutThenMightContain(t *testing.T) {
	f := New(1000, 0)
	inserted := make([]byteable.Composite, 0, 200)
	for i := 0; i < 200; i++ {
		c := composite(t, i)
		f.Put(c)
		inserted = append(inserted, c)
	}
	for _, c := range inserted {
		if !f.MightContain(c) {
			t.Fatalf("expected MightContain to be true for an inserted composite")
		}
	}
}

func TestMightContainFalseForAbsent(t *testing.T) {
	f := New(10, 0)
	f.Put(composite(t, 1))
	if f.MightContain(composite(t, 99999)) {
		t.Skip("false positive on a tiny filter is possible, not a bug")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := New(500, 0.01)
	for i := 0; i < 50; i++ {
		f.Put(composite(t, i))
	}
	decoded, err := Decode(f.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.BitCount() != f.BitCount() {
		t.Fatalf("bit count mismatch: %d != %d", decoded.BitCount(), f.BitCount())
	}
	for i := 0; i < 50; i++ {
		if !decoded.MightContain(composite(t, i)) {
			t.Fatalf("decoded filter lost membership for composite %d", i)
		}
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error decoding a short buffer")
	}
}

func TestEstimateSimilarity(t *testing.T) {
	a := New(100, 0.03)
	b := New(100, 0.03)
	for i := 0; i < 50; i++ {
		a.Put(composite(t, i))
		b.Put(composite(t, i))
	}
	sim, err := EstimateSimilarity(a, b)
	if err != nil {
		t.Fatalf("EstimateSimilarity: %v", err)
	}
	if sim < 0.9 {
		t.Fatalf("expected near-identical filters to report high similarity, got %f", sim)
	}

	c := New(100, 0.03)
	for i := 1000; i < 1050; i++ {
		c.Put(composite(t, i))
	}
	sim2, err := EstimateSimilarity(a, c)
	if err != nil {
		t.Fatalf("EstimateSimilarity: %v", err)
	}
	if sim2 >= sim {
		t.Fatalf("expected disjoint filters to report lower similarity than identical ones")
	}
}

func TestEstimateSimilarityIncompatibleShapes(t *testing.T) {
	a := New(10, 0.03)
	b := New(100000, 0.03)
	if _, err := EstimateSimilarity(a, b); err != ErrIncompatibleFilterShapes {
		t.Fatalf("expected ErrIncompatibleFilterShapes, got %v", err)
	}
}

func TestConcurrentPutAndMightContain(t *testing.T) {
	f := New(1000, 0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.Put(composite(t, i))
			f.MightContain(composite(t, i))
		}(i)
	}
	wg.Wait()
	for i := 0; i < 100; i++ {
		if !f.MightContain(composite(t, i)) {
			t.Fatalf("expected MightContain true after concurrent Put for %d", i)
		}
	}
}
