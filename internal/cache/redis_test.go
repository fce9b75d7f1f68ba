package cache

import (
	"testing"
)

func TestHashString(t *testing.T) {
	// Deterministic
	h1 := hashString("test")
	h2 := hashString("test")
	if h1 != h2 {
		t.Errorf("hashString not deterministic: %q != %q", h1, h2)
	}

	// Different inputs produce different hashes
	h3 := hashString("other")
	if h1 == h3 {
		t.Error("different inputs should produce different hashes")
	}

	// Non-empty
	if h1 == "" {
		t.Error("hash should not be empty")
	}

	// Empty string is valid
	h4 := hashString("")
	if h4 == "" {
		t.Error("hash of empty string should not be empty")
	}
}

func TestDecisionKey_Deterministic(t *testing.T) {
	k1 := decisionKey("2 bhk in baner", "city_pune", "/pune")
	k2 := decisionKey("2 bhk in baner", "city_pune", "/pune")
	if k1 != k2 {
		t.Errorf("decisionKey not deterministic: %q != %q", k1, k2)
	}
	if len(k1) < 4 || k1[:4] != "dec:" {
		t.Errorf("expected 'dec:' prefix, got %q", k1)
	}
}

func TestDecisionKey_InputsAffectKey(t *testing.T) {
	base := decisionKey("baner", "city_pune", "")

	if decisionKey("godrej woods", "city_pune", "") == base {
		t.Error("different queries should produce different keys")
	}
	if decisionKey("baner", "city_noida", "") == base {
		t.Error("different cities should produce different keys")
	}
	if decisionKey("baner", "city_pune", "/pune/baner") == base {
		t.Error("different context urls should produce different keys")
	}
}

func TestSuggestKey(t *testing.T) {
	k1 := suggestKey("god", "city_noida", 10)
	k2 := suggestKey("god", "city_noida", 10)
	if k1 != k2 {
		t.Errorf("suggestKey not deterministic: %q != %q", k1, k2)
	}
	if len(k1) < 3 || k1[:3] != "sg:" {
		t.Errorf("expected 'sg:' prefix, got %q", k1)
	}
	if suggestKey("god", "city_noida", 5) == k1 {
		t.Error("limit should affect the key")
	}
}

func TestDecisionAndSuggestKeysDistinct(t *testing.T) {
	// Same raw input across surfaces must not collide.
	if decisionKey("baner", "city_pune", "") == suggestKey("baner", "city_pune", 0) {
		t.Error("decision and suggest keys should live in separate namespaces")
	}
}
