package hasher_test

import (
	"strings"
	"testing"

	"github.com/artpar/crudkit/adapters/hasher"
	"github.com/artpar/crudkit/domain/model"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_Hash(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("password123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(string(hash), "$2") {
		t.Errorf("hash = %q, expected bcrypt format", hash)
	}
}

func TestBcrypt_InvalidCostFallsBack(t *testing.T) {
	for _, cost := range []int{1, 100} {
		hash, err := hasher.NewBcrypt(cost).Hash("x")
		if err != nil {
			t.Fatalf("cost %d: %v", cost, err)
		}
		got, _ := bcrypt.Cost(hash)
		if got != bcrypt.DefaultCost {
			t.Errorf("cost %d: hashed with %d, want default %d", cost, got, bcrypt.DefaultCost)
		}
	}
}

func TestBcrypt_Hash_SameInputDifferentOutput(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	hash1, _ := h.Hash("password")
	hash2, _ := h.Hash("password")
	if string(hash1) == string(hash2) {
		t.Error("same password should produce different hashes due to salt")
	}
}

func TestBcrypt_Compare(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)
	hash, _ := h.Hash("correctPassword")

	if !h.Compare(hash, "correctPassword") {
		t.Error("Compare should return true for matching password")
	}
	if h.Compare(hash, "wrongPassword") {
		t.Error("Compare should return false for wrong password")
	}
	if h.Compare([]byte("not-a-hash"), "correctPassword") {
		t.Error("Compare should return false for invalid hash")
	}
}

func TestHashFields(t *testing.T) {
	doc := model.Document{"name": "Ann", "password": "s3cret", "pin": ""}

	if err := hasher.HashFields(hasher.Fake{}, doc, []string{"password", "pin", "missing"}); err != nil {
		t.Fatalf("HashFields: %v", err)
	}
	if doc["password"] != "fake$s3cret" {
		t.Errorf("password = %v, want hashed", doc["password"])
	}
	if doc["pin"] != "" {
		t.Errorf("empty value should be left alone, got %v", doc["pin"])
	}
	if _, ok := doc["missing"]; ok {
		t.Error("absent field must not be added")
	}
	if doc["name"] != "Ann" {
		t.Error("other fields must be untouched")
	}
}

func TestHashFields_Bcrypt(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)
	doc := model.Document{"password": "hunter22"}

	if err := hasher.HashFields(h, doc, []string{"password"}); err != nil {
		t.Fatal(err)
	}
	if !h.Compare([]byte(doc["password"].(string)), "hunter22") {
		t.Error("stored hash should verify against the plaintext")
	}
}

func TestFake_Compare(t *testing.T) {
	h := hasher.Fake{}
	hash, _ := h.Hash("pw")

	if !h.Compare(hash, "pw") {
		t.Error("Fake should compare hashed value with original")
	}
	if h.Compare([]byte("pw"), "pw") {
		t.Error("unmarked value should not match")
	}
}
