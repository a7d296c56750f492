package byteable

import "testing"

func TestCompositeRoundTrip(t *testing.T) {
	c, err := Create(Text("name"), NewString("jeff"), Identifier(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	loaded, err := Load(Bytes(c))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.Equal(loaded) {
		t.Fatalf("round trip mismatch")
	}
	if loaded.PartCount() != 3 {
		t.Fatalf("expected 3 parts, got %d", loaded.PartCount())
	}
}

func TestCompositeEqualityIsByteEquality(t *testing.T) {
	a, _ := Create(Text("name"), Identifier(1))
	b, _ := Create(Text("name"), Identifier(1))
	c, _ := Create(Text("name"), Identifier(2))

	if !a.Equal(b) {
		t.Fatalf("expected equal composites built from equal parts to be Equal")
	}
	if a.Equal(c) {
		t.Fatalf("expected composites built from different parts to differ")
	}
	if a.Hash() != b.Hash() {
		t.Fatalf("expected equal composites to hash equal")
	}
}

func TestCompositeRejectsTooManyParts(t *testing.T) {
	_, err := Create(Identifier(1), Identifier(2), Identifier(3), Identifier(4))
	if err != ErrTooManyParts {
		t.Fatalf("expected ErrTooManyParts, got %v", err)
	}
}

func TestCompositePart(t *testing.T) {
	c, err := Create(Text("a"), Text("bb"), Text("ccc"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	p1, err := c.Part(1)
	if err != nil {
		t.Fatalf("Part(1): %v", err)
	}
	if string(p1) != "bb" {
		t.Fatalf("expected part 1 to be %q, got %q", "bb", p1)
	}
}
