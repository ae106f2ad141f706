package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(DefaultConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	hash, err := hasher.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("correct horse battery", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification success, ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("wrong horse battery!", hash)
	if err != nil || ok {
		t.Fatalf("expected verification failure, ok=%v err=%v", ok, err)
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	hasher, err := NewArgon2(DefaultConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	if _, err := hasher.Hash("short"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestVerifyRejectsMangledHash(t *testing.T) {
	hasher, err := NewArgon2(DefaultConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	for _, encoded := range []string{
		"",
		"$argon2id$v=19$m=65536,t=2,p=2$notbase64$also-not",
		"$bcrypt$v=19$m=65536,t=2,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if _, err := hasher.Verify("correct horse battery", encoded); err == nil {
			t.Fatalf("expected parse error for %q", encoded)
		}
	}
}

func TestConfigFloors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected error for low memory cost")
	}
}
