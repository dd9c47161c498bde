package identifier

import (
	"testing"

	"github.com/google/uuid"
)

func TestDBIDParsesVerbatimUUID(t *testing.T) {
	raw := "550e8400-e29b-41d4-a716-446655440000"
	got := DBID(raw)
	want, _ := uuid.Parse(raw)
	if got != want {
		t.Fatalf("DBID(%q) = %v, want %v", raw, got, want)
	}
}

func TestDBIDCoercesNonUUIDDeterministically(t *testing.T) {
	first := DBID("incident-42")
	second := DBID("incident-42")
	if first != second {
		t.Fatalf("DBID must be deterministic: %v != %v", first, second)
	}

	other := DBID("incident-43")
	if first == other {
		t.Fatalf("distinct public ids must not collide: %v", first)
	}
}

func TestDBIDMatchesNameSHA1Scheme(t *testing.T) {
	got := DBID("incident-42")
	want := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("incident-42"))
	if got != want {
		t.Fatalf("DBID(%q) = %v, want %v", "incident-42", got, want)
	}
}
