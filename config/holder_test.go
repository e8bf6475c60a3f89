package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/crudkit/config"
	"github.com/artpar/crudkit/domain/entity"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	path := writeEntities(t, validEntities())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if len(got) != 1 {
		t.Fatalf("len(Get) = %d, want 1", len(got))
	}
	if got[0].Path != "/users" {
		t.Errorf("Path = %s, want /users", got[0].Path)
	}
}

func TestNewHolder_InvalidFile(t *testing.T) {
	path := writeEntities(t, "entities: [")

	if _, err := config.NewHolder(path, zerolog.Nop()); err == nil {
		t.Error("NewHolder should fail for an invalid file")
	}
	if _, err := config.NewHolder(filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop()); err == nil {
		t.Error("NewHolder should fail for a missing file")
	}
}

func TestHolder_ReloadAndOnChange(t *testing.T) {
	path := writeEntities(t, validEntities())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var received []entity.Descriptor
	h.OnChange(func(descs []entity.Descriptor) error {
		received = descs
		return nil
	})

	if err := os.WriteFile(path, []byte(twoEntities()), 0644); err != nil {
		t.Fatalf("write entities: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if len(received) != 2 {
		t.Errorf("callback received %d entities, want 2", len(received))
	}
	if len(h.Get()) != 2 {
		t.Errorf("Get after reload = %d entities, want 2", len(h.Get()))
	}
}

func TestHolder_ReloadInvalidFile(t *testing.T) {
	path := writeEntities(t, validEntities())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	invalid := `
entities:
  - name: a
    types: {GET: {ONESOFT: true}}
`
	if err := os.WriteFile(path, []byte(invalid), 0644); err != nil {
		t.Fatalf("write entities: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid definitions")
	}
	if got := h.Get(); len(got) != 1 || got[0].Name != "user" {
		t.Errorf("should keep old definitions, got %+v", got)
	}
}

func TestHolder_ReloadRejectedByListener(t *testing.T) {
	path := writeEntities(t, validEntities())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	h.OnChange(func([]entity.Descriptor) error {
		return errors.New("unknown hook")
	})

	if err := os.WriteFile(path, []byte(twoEntities()), 0644); err != nil {
		t.Fatalf("write entities: %v", err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("Reload should fail when a listener rejects the definitions")
	}
	if len(h.Get()) != 1 {
		t.Errorf("should keep old definitions, got %d", len(h.Get()))
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeEntities(t, validEntities())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	changed := make(chan int, 8)
	h.OnChange(func(descs []entity.Descriptor) error {
		changed <- len(descs)
		return nil
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte(twoEntities()), 0644); err != nil {
		t.Fatalf("write entities: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-changed:
			if n == 2 {
				return
			}
		case <-deadline:
			t.Fatal("file watcher did not trigger reload")
		}
	}
}

func TestHolder_StopTwice(t *testing.T) {
	path := writeEntities(t, validEntities())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.WatchSignals()
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeEntities(t, validEntities())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if len(h.Get()) == 0 {
					t.Error("concurrent Get returned no entities")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

// Helpers

func validEntities() string {
	return `
entities:
  - name: user
    path: /users
    model:
      fields:
        name: {type: string, required: true}
    types:
      GET: true
`
}

func twoEntities() string {
	return validEntities() + `
  - name: note
    types:
      GET: {ALL: true}
`
}

func writeEntities(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "entities.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write entities: %v", err)
	}
	return path
}
