package idgen_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/artpar/crudkit/adapters/idgen"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()
	if !uuidV4.MatchString(id) {
		t.Errorf("ID %s doesn't match UUID v4 format", id)
	}
	if !idgen.Valid(id) {
		t.Errorf("Valid(%s) = false", id)
	}
}

func TestUUID_New_Unique(t *testing.T) {
	g := idgen.UUID{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	for _, id := range []string{"", "123", "not-a-uuid", "507f1f77bcf86cd799439011"} {
		if idgen.Valid(id) {
			t.Errorf("Valid(%q) = true, want false", id)
		}
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential()

	if id := g.New(); id != "00000000-0000-4000-8000-000000000001" {
		t.Errorf("first ID = %s", id)
	}
	id := g.New()
	if id != "00000000-0000-4000-8000-000000000002" {
		t.Errorf("second ID = %s", id)
	}
	if !uuidV4.MatchString(id) || !idgen.Valid(id) {
		t.Errorf("sequential id %s should be a valid UUID", id)
	}
}

func TestSequential_Reset(t *testing.T) {
	g := idgen.NewSequential()
	g.New()
	g.New()
	g.Reset()

	if id := g.New(); id != "00000000-0000-4000-8000-000000000001" {
		t.Errorf("after reset ID = %s", id)
	}
}

func TestSequential_ConcurrentAccess(t *testing.T) {
	g := idgen.NewSequential()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := g.New()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 1000 {
		t.Errorf("expected 1000 unique IDs, got %d", len(seen))
	}
}
