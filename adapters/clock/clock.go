// Package clock provides Clock implementations for document timestamps.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/crudkit/ports"
)

// Precision is the resolution of stored timestamps. Document stores keep
// milliseconds, so times are truncated before they are written.
const Precision = time.Millisecond

// Real returns the current UTC time.
type Real struct{}

// Now returns the current time truncated to Precision.
func (Real) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}

var _ ports.Clock = Real{}

// Fake provides a controllable clock for testing.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t.UTC()}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var _ ports.Clock = (*Fake)(nil)
