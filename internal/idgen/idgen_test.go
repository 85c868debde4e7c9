package idgen

import (
	"testing"

	"github.com/google/uuid"
)

func TestUUIDGenerator_Distinct(t *testing.T) {
	const draws = 10000
	var g Generator = UUIDGenerator{}
	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		id := g.Next()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id after %d draws: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDGenerator_Format(t *testing.T) {
	id := UUIDGenerator{}.Next()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("not a UUID: %q (%v)", id, err)
	}
	if u.Version() != 4 {
		t.Fatalf("version = %d; want 4", u.Version())
	}
}

func TestFunc(t *testing.T) {
	g := Func(func() string { return "fixed" })
	if got := g.Next(); got != "fixed" {
		t.Fatalf("Next() = %q", got)
	}
}
