package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRequestResetIssuesToken(t *testing.T) {
	clock := newTestClock()
	core, store, notifier := newTestCore(t, clock)
	store.addCredential("u1")

	challenge, err := core.RequestPasswordReset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if challenge == "" {
		t.Fatal("expected non-empty challenge")
	}
	if len(notifier.challenges) != 1 || notifier.challenges[0] != challenge {
		t.Fatal("expected challenge delivered to notifier")
	}

	if len(store.resets) != 1 {
		t.Fatalf("expected 1 persisted token, got %d", len(store.resets))
	}
	for _, tok := range store.resets {
		if tok.Used {
			t.Fatal("fresh token must not be used")
		}
		if want := clock.Now().Add(24 * time.Hour); !tok.ExpiresAt.Equal(want) {
			t.Fatalf("expected expiry %v, got %v", want, tok.ExpiresAt)
		}
	}
}

func TestRequestResetSupersedesPrior(t *testing.T) {
	core, store, _ := newTestCore(t, newTestClock())
	store.addCredential("u1")

	first, err := core.RequestPasswordReset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, err := core.RequestPasswordReset(context.Background(), "u1"); err != nil {
		t.Fatalf("second request failed: %v", err)
	}

	err = core.ConsumeResetToken(context.Background(), first, "brand-new-password")
	if !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected superseded token to read as already used, got %v", err)
	}
}

func TestRequestResetUnknownIdentityIsSuccessShaped(t *testing.T) {
	core, store, notifier := newTestCore(t, newTestClock())

	challenge, err := core.RequestPasswordReset(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("expected success-shaped response, got %v", err)
	}
	if challenge == "" {
		t.Fatal("expected a challenge even for unknown identity")
	}
	if len(store.resets) != 0 {
		t.Fatal("unknown identity must not persist a token")
	}
	if len(notifier.challenges) != 0 {
		t.Fatal("unknown identity must not trigger delivery")
	}
}

func TestConsumeResetTokenHappyPath(t *testing.T) {
	core, store, _ := newTestCore(t, newTestClock())
	store.addCredential("u1")

	challenge, err := core.RequestPasswordReset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	if err := core.ConsumeResetToken(context.Background(), challenge, "brand-new-password"); err != nil {
		t.Fatalf("ConsumeResetToken failed: %v", err)
	}

	cred, err := store.GetCredential(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if cred.PasswordHash == "$argon2id$old" {
		t.Fatal("expected password hash to change")
	}

	// Second consumption of the same challenge must fail.
	err = core.ConsumeResetToken(context.Background(), challenge, "another-new-password")
	if !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
}

func TestConsumeResetTokenExpired(t *testing.T) {
	clock := newTestClock()
	core, store, _ := newTestCore(t, clock)
	store.addCredential("u1")

	challenge, err := core.RequestPasswordReset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	clock.Advance(24*time.Hour + time.Minute)

	err = core.ConsumeResetToken(context.Background(), challenge, "brand-new-password")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestConsumeResetTokenGarbageChallenge(t *testing.T) {
	core, _, _ := newTestCore(t, nil)

	err := core.ConsumeResetToken(context.Background(), "not-a-challenge", "brand-new-password")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestConsumeResetTokenPolicyRejectionKeepsToken(t *testing.T) {
	core, store, _ := newTestCore(t, nil)
	store.addCredential("u1")

	challenge, err := core.RequestPasswordReset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	// Too short for the password policy; must not burn the token.
	if err := core.ConsumeResetToken(context.Background(), challenge, "short"); err == nil {
		t.Fatal("expected policy error")
	}
	if err := core.ConsumeResetToken(context.Background(), challenge, "brand-new-password"); err != nil {
		t.Fatalf("token should still be consumable, got %v", err)
	}
}

func TestConcurrentConsumptionExactlyOneSucceeds(t *testing.T) {
	core, store, _ := newTestCore(t, nil)
	store.addCredential("u1")

	challenge, err := core.RequestPasswordReset(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = core.ConsumeResetToken(context.Background(), challenge, "brand-new-password")
		}(i)
	}
	wg.Wait()

	var successes, replays int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTokenAlreadyUsed):
			replays++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	if replays != attempts-1 {
		t.Fatalf("expected %d replays, got %d", attempts-1, replays)
	}
}
