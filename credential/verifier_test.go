package credential

import (
	"context"
	"errors"
	"testing"
)

type mapSource struct {
	records map[string]Stored
}

func (s *mapSource) Lookup(_ context.Context, identifier string) (Stored, error) {
	rec, ok := s.records[identifier]
	if !ok {
		return Stored{}, errors.New("no such record")
	}
	return rec, nil
}

func newTestVerifier(t *testing.T) (*Verifier, *mapSource) {
	t.Helper()

	h := testHasher(t)
	hash, err := h.Hash("s3cret-enough")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	src := &mapSource{records: map[string]Stored{
		"alice": {
			PrincipalID: "user-alice",
			Identifier:  "alice",
			SecretHash:  hash,
			Roles:       []string{"admin"},
		},
	}}

	v, err := NewVerifier(h, src)
	if err != nil {
		t.Fatalf("new verifier failed: %v", err)
	}
	return v, src
}

func TestVerifySuccess(t *testing.T) {
	v, _ := newTestVerifier(t)

	id, err := v.Verify(context.Background(), "alice", "s3cret-enough")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if id.PrincipalID != "user-alice" {
		t.Fatalf("principal = %q, want user-alice", id.PrincipalID)
	}
	if len(id.Roles) != 1 || id.Roles[0] != "admin" {
		t.Fatalf("roles = %v", id.Roles)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	v, _ := newTestVerifier(t)

	if _, err := v.Verify(context.Background(), "alice", "wrong-secret!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyUnknownIdentifierIndistinguishable(t *testing.T) {
	v, _ := newTestVerifier(t)

	_, unknownErr := v.Verify(context.Background(), "nobody", "s3cret-enough")
	_, wrongErr := v.Verify(context.Background(), "alice", "wrong-secret!")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown identifier err = %v, want ErrInvalidCredentials", unknownErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error text differs: %q vs %q", unknownErr, wrongErr)
	}
}

func TestVerifyEmptyInputs(t *testing.T) {
	v, _ := newTestVerifier(t)

	if _, err := v.Verify(context.Background(), "", "s3cret-enough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty identifier err = %v", err)
	}
	if _, err := v.Verify(context.Background(), "alice", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty secret err = %v", err)
	}
}

func TestVerifyHashlessRecordNeverAuthenticates(t *testing.T) {
	v, src := newTestVerifier(t)
	src.records["oauth-only"] = Stored{
		PrincipalID: "user-oauth",
		Identifier:  "oauth-only",
		SecretHash:  "",
		Roles:       []string{"admin"},
	}

	// A record without a stored hash falls back to the timing decoy. The
	// decoy's preimage must not work as a password, nor anything else.
	for _, secret := range []string{"decoy-secret-equalizer", "s3cret-enough", "anything at all"} {
		if _, err := v.Verify(context.Background(), "oauth-only", secret); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("secret %q: err = %v, want ErrInvalidCredentials", secret, err)
		}
	}
}

func TestVerifyUnknownIdentifierRejectsDecoyPreimage(t *testing.T) {
	v, _ := newTestVerifier(t)

	if _, err := v.Verify(context.Background(), "nobody", "decoy-secret-equalizer"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyCorruptStoredHash(t *testing.T) {
	v, src := newTestVerifier(t)
	src.records["mallory"] = Stored{
		PrincipalID: "user-mallory",
		Identifier:  "mallory",
		SecretHash:  "not a PHC string",
	}

	if _, err := v.Verify(context.Background(), "mallory", "s3cret-enough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifierReturnsRoleCopy(t *testing.T) {
	v, src := newTestVerifier(t)

	id, err := v.Verify(context.Background(), "alice", "s3cret-enough")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	id.Roles[0] = "mutated"
	if src.records["alice"].Roles[0] != "admin" {
		t.Fatal("caller mutation reached the stored record")
	}
}
