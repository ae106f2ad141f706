package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	authcore "github.com/feedlane/authcore"
)

// gateStore is the minimal store needed to build a Core for gate tests;
// the gate itself never touches persistence.
type gateStore struct {
	mu    sync.Mutex
	creds map[string]*authcore.Credential
}

func newGateStore() *gateStore {
	return &gateStore{creds: map[string]*authcore.Credential{}}
}

func (s *gateStore) GetCredential(_ context.Context, identityKey string) (*authcore.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[identityKey]
	if !ok {
		return nil, authcore.ErrCredentialNotFound
	}
	return cred, nil
}

func (s *gateStore) UpdatePasswordHash(context.Context, string, string) error { return nil }
func (s *gateStore) SaveTwoFactor(context.Context, string, string, []authcore.BackupCodeRecord) error {
	return nil
}
func (s *gateStore) ClearTwoFactor(context.Context, string) error { return nil }
func (s *gateStore) ConsumeBackupCode(context.Context, string, [32]byte) (bool, error) {
	return false, nil
}
func (s *gateStore) SaveResetToken(context.Context, *authcore.ResetToken) error { return nil }
func (s *gateStore) ConsumeResetToken(context.Context, string, [32]byte, time.Time) (string, error) {
	return "", authcore.ErrTokenNotFound
}
func (s *gateStore) SupersedeResetTokens(context.Context, string, time.Time) error { return nil }

func newGateCore(t *testing.T) *authcore.Core {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.Token.Key = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Issuer = "gate-test"

	store := newGateStore()
	core, err := authcore.New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithResetTokenStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return core
}

// echoIdentity reports whether the gate attached an identity.
func echoIdentity(t *testing.T) (http.Handler, *struct {
	called   bool
	identity *authcore.Identity
}) {
	t.Helper()
	state := &struct {
		called   bool
		identity *authcore.Identity
	}{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state.called = true
		state.identity, _ = authcore.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return handler, state
}

func TestGateAttachesIdentityForValidToken(t *testing.T) {
	core := newGateCore(t)
	handler, state := echoIdentity(t)

	tok, err := core.IssueToken("u1")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feedback", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	Gate(core, nil)(handler).ServeHTTP(rec, req)

	if !state.called {
		t.Fatal("handler must always run")
	}
	if state.identity == nil || state.identity.Subject != "u1" {
		t.Fatalf("expected identity u1, got %+v", state.identity)
	}
}

func TestGatePublicPrefixBypassesValidation(t *testing.T) {
	core := newGateCore(t)

	for _, path := range []string{
		"/api/v1/auth/login",
		"/health",
		"/v3/api-docs/components",
		"/swagger-ui/index.html",
		"/metrics",
	} {
		handler, state := echoIdentity(t)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		// Garbage header must be irrelevant on public paths.
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()

		Gate(core, nil)(handler).ServeHTTP(rec, req)

		if !state.called {
			t.Fatalf("handler not reached for public path %s", path)
		}
		if state.identity != nil {
			t.Fatalf("public path %s must pass through untouched", path)
		}
	}
}

func TestGateNeverRejects(t *testing.T) {
	core := newGateCore(t)

	expired := func() string {
		cfg := authcore.DefaultConfig()
		cfg.Token.Key = []byte("0123456789abcdef0123456789abcdef")
		cfg.Token.Issuer = "gate-test"
		past := time.Now().Add(-time.Hour)
		cfg.Token.Now = func() time.Time { return past }

		store := newGateStore()
		old, err := authcore.New().
			WithConfig(cfg).
			WithCredentialStore(store).
			WithResetTokenStore(store).
			Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		tok, err := old.IssueToken("u1")
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		return tok
	}()

	cases := map[string]string{
		"no header":       "",
		"wrong scheme":    "Basic dXNlcjpwYXNz",
		"empty bearer":    "Bearer ",
		"malformed token": "Bearer not.a.token",
		"expired token":   "Bearer " + expired,
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			handler, state := echoIdentity(t)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/feedback", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()

			Gate(core, nil)(handler).ServeHTTP(rec, req)

			if !state.called {
				t.Fatal("gate must never terminate the request")
			}
			if state.identity != nil {
				t.Fatal("no identity must be attached")
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("expected pass-through status, got %d", rec.Code)
			}
		})
	}
}

func TestGateSubjectMismatchTokenFromOtherKey(t *testing.T) {
	core := newGateCore(t)

	otherCfg := authcore.DefaultConfig()
	otherCfg.Token.Key = []byte("ffffffffffffffffffffffffffffffff")
	otherCfg.Token.Issuer = "gate-test"
	store := newGateStore()
	other, err := authcore.New().
		WithConfig(otherCfg).
		WithCredentialStore(store).
		WithResetTokenStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	tok, err := other.IssueToken("u1")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	handler, state := echoIdentity(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/feedback", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	Gate(core, nil)(handler).ServeHTTP(rec, req)

	if !state.called || state.identity != nil {
		t.Fatal("foreign-key token must pass through anonymous")
	}
}
