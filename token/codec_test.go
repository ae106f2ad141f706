package token

import (
	"errors"
	"testing"
	"time"
)

func testCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		Key:           []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authcore-test",
		TTL:           15 * time.Minute,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return codec
}

func TestIssueRoundTrip(t *testing.T) {
	codec := testCodec(t, nil)

	tok, err := codec.Issue("user-42")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	subject, err := codec.ExtractSubject(tok)
	if err != nil {
		t.Fatalf("ExtractSubject failed: %v", err)
	}
	if subject != "user-42" {
		t.Fatalf("expected subject user-42, got %s", subject)
	}
	if !codec.IsValid(tok, "user-42") {
		t.Fatal("expected token to be valid for its own subject")
	}
	if codec.IsValid(tok, "user-43") {
		t.Fatal("token must not validate for a different subject")
	}
}

func TestValidateAndExtract(t *testing.T) {
	codec := testCodec(t, nil)

	tok, err := codec.Issue("user-7")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	subject, err := codec.ValidateAndExtract(tok)
	if err != nil {
		t.Fatalf("ValidateAndExtract failed: %v", err)
	}
	if subject != "user-7" {
		t.Fatalf("expected user-7, got %s", subject)
	}

	if _, err := codec.ValidateAndExtract("not-a-token"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec := testCodec(t, func() time.Time { return clock })

	tok, err := codec.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	clock = clock.Add(16 * time.Minute)

	if _, err := codec.ValidateAndExtract(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if codec.IsValid(tok, "user-1") {
		t.Fatal("expired token must not be valid")
	}

	// Subject extraction tolerates expiry so the gate can log who tried.
	subject, err := codec.ExtractSubject(tok)
	if err != nil {
		t.Fatalf("ExtractSubject on expired token failed: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("expected user-1, got %s", subject)
	}
}

func TestWrongKeyRejected(t *testing.T) {
	codec := testCodec(t, nil)
	other, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		Key:           []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "authcore-test",
		TTL:           15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}

	tok, err := other.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := codec.ValidateAndExtract(tok); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := codec.ExtractSubject(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestCodecConfigValidation(t *testing.T) {
	if _, err := NewCodec(Config{SigningMethod: MethodHS256, Key: []byte("k")}); err == nil {
		t.Fatal("expected error for zero TTL")
	}
	if _, err := NewCodec(Config{SigningMethod: MethodHS256, TTL: time.Minute}); err == nil {
		t.Fatal("expected error for missing hs256 key")
	}
	if _, err := NewCodec(Config{SigningMethod: "rs512", Key: []byte("k"), TTL: time.Minute}); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}
