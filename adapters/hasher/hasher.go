// Package hasher hashes password fields before documents are stored.
package hasher

import (
	"fmt"
	"strings"

	"github.com/artpar/crudkit/domain/model"
	"github.com/artpar/crudkit/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost. Out of range costs
// fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash from plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare checks if plaintext matches hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)

// HashFields replaces every non-empty string value of the named fields in
// doc with its hash. Absent fields are left alone.
func HashFields(h ports.Hasher, doc model.Document, fields []string) error {
	for _, name := range fields {
		s, ok := doc[name].(string)
		if !ok || s == "" {
			continue
		}
		hash, err := h.Hash(s)
		if err != nil {
			return fmt.Errorf("hash %s: %w", name, err)
		}
		doc[name] = string(hash)
	}
	return nil
}

// Fake marks values instead of hashing them. For tests only.
type Fake struct{}

const fakePrefix = "fake$"

// Hash returns plaintext with a marker prefix.
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(fakePrefix + plaintext), nil
}

// Compare checks the marker and the plaintext.
func (Fake) Compare(hash []byte, plaintext string) bool {
	s, ok := strings.CutPrefix(string(hash), fakePrefix)
	return ok && s == plaintext
}

var _ ports.Hasher = Fake{}
