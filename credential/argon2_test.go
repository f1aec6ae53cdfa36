package credential

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()

	h, err := NewHasher(HasherConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new hasher failed: %v", err)
	}
	return h
}

func TestHashAndCompare(t *testing.T) {
	h := testHasher(t)

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected format: %s", encoded)
	}

	ok, err := h.Compare("correct horse battery", encoded)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if !ok {
		t.Fatal("correct secret rejected")
	}

	ok, err = h.Compare("wrong horse battery!!", encoded)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if ok {
		t.Fatal("wrong secret accepted")
	}
}

func TestHashUniqueSalts(t *testing.T) {
	h := testHasher(t)

	a, err := h.Hash("same secret twice")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	b, err := h.Hash("same secret twice")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same secret are identical")
	}
}

func TestHashRejectsShortSecret(t *testing.T) {
	h := testHasher(t)

	if _, err := h.Hash("short"); err == nil {
		t.Fatal("short secret accepted")
	}
}

func TestCompareRejectsMangledHash(t *testing.T) {
	h := testHasher(t)

	cases := []string{
		"",
		"plainly not a hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	}
	for _, bad := range cases {
		if _, err := h.Compare("whatever secret", bad); err == nil {
			t.Fatalf("mangled hash accepted: %q", bad)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := testHasher(t)
	encoded, err := weak.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	strong, err := NewHasher(HasherConfig{
		Memory:      16 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("new hasher failed: %v", err)
	}

	needs, err := strong.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("needs upgrade failed: %v", err)
	}
	if !needs {
		t.Fatal("stronger config did not flag weak hash")
	}

	needs, err = weak.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("needs upgrade failed: %v", err)
	}
	if needs {
		t.Fatal("matching config flagged its own hash")
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	cases := []HasherConfig{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range cases {
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("case %d: weak config accepted", i)
		}
	}
}
