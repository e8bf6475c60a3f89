// Package idgen generates document identifiers.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/artpar/crudkit/ports"
	"github.com/google/uuid"
)

// Kind is the identifier type named in cast errors for malformed ids.
const Kind = "UUID"

// UUID generates random v4 UUIDs.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

// Valid reports whether id parses as a UUID.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var _ ports.IDGenerator = UUID{}

// Sequential generates predictable UUID-shaped ids for tests:
// 00000000-0000-4000-8000-000000000001, ...002 and so on.
type Sequential struct {
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential() *Sequential {
	return &Sequential{}
}

// New generates the next id.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("00000000-0000-4000-8000-%012x", n)
}

// Reset restarts the sequence.
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

var _ ports.IDGenerator = (*Sequential)(nil)
