package coordinate

import (
	"regexp"
	"testing"
)

var coordShape = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{8}-[0-9a-f]{8}-[0-9a-f]{8}$`)

func TestDeriveShape(t *testing.T) {
	d := New()
	c := d.Derive("digest", 1000)
	if !coordShape.MatchString(c) {
		t.Errorf("coordinate %q does not match expected shape", c)
	}
}

func TestDeriveDistinctForSameInputs(t *testing.T) {
	d := New()
	// Identical payload and timestamp still map to distinct coordinates
	// because the counter advances.
	a := d.Derive("digest", 1000)
	b := d.Derive("digest", 1000)
	if a == b {
		t.Error("counter not mixed into derivation")
	}
}

func TestDeriveNoCollisions(t *testing.T) {
	d := New()
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		c := d.Derive("same-digest", 42)
		if seen[c] {
			t.Fatalf("collision at iteration %d: %s", i, c)
		}
		seen[c] = true
	}
}
