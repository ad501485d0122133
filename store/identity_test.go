package store

import "testing"

func TestHashIdentity(t *testing.T) {
	a := HashIdentity("123456789")
	b := HashIdentity("123456789")
	c := HashIdentity("987654321")

	if a != b {
		t.Error("expected deterministic hashes")
	}
	if a == c {
		t.Error("expected distinct identities to hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
	if a == "123456789" {
		t.Error("raw identity must not leak through")
	}
}
