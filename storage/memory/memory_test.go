package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/mcp-oauth-facade/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewWithInterval(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pendingFixture(state string, ttl time.Duration) *storage.PendingAuthorization {
	now := time.Now()
	return &storage.PendingAuthorization{
		State:         state,
		ClientID:      "client-1",
		RedirectURI:   "https://client.example/cb",
		CodeChallenge: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

func TestStore_ConsumePendingAuthorization(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SavePendingAuthorization(ctx, pendingFixture("state-1", time.Minute)); err != nil {
		t.Fatalf("SavePendingAuthorization() error = %v", err)
	}

	pending, err := store.ConsumePendingAuthorization(ctx, "state-1")
	if err != nil {
		t.Fatalf("ConsumePendingAuthorization() error = %v", err)
	}
	if pending.RedirectURI != "https://client.example/cb" {
		t.Errorf("RedirectURI = %q, want %q", pending.RedirectURI, "https://client.example/cb")
	}

	// Second consume must miss
	if _, err := store.ConsumePendingAuthorization(ctx, "state-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second ConsumePendingAuthorization() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ConsumePendingAuthorization_Unknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ConsumePendingAuthorization(context.Background(), "never-stored")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ConsumePendingAuthorization() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ConsumePendingAuthorization_Expired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SavePendingAuthorization(ctx, pendingFixture("state-exp", -time.Second)); err != nil {
		t.Fatalf("SavePendingAuthorization() error = %v", err)
	}

	if _, err := store.ConsumePendingAuthorization(ctx, "state-exp"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ConsumePendingAuthorization() error = %v, want ErrNotFound for expired entry", err)
	}
}

func TestStore_ConsumeIssuedCode_ExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.SaveIssuedCode(ctx, &storage.IssuedCode{
		Code:        "AUTH123",
		RedirectURI: "https://client.example/cb",
		State:       "xyz",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SaveIssuedCode() error = %v", err)
	}

	issued, err := store.ConsumeIssuedCode(ctx, "AUTH123")
	if err != nil {
		t.Fatalf("ConsumeIssuedCode() error = %v", err)
	}
	if issued.State != "xyz" {
		t.Errorf("State = %q, want %q", issued.State, "xyz")
	}

	if _, err := store.ConsumeIssuedCode(ctx, "AUTH123"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second ConsumeIssuedCode() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ConsumeIssuedCode_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.SaveIssuedCode(ctx, &storage.IssuedCode{
		Code:      "RACE",
		State:     "s",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SaveIssuedCode() error = %v", err)
	}

	const attempts = 100
	var successes atomic.Int64
	var wg sync.WaitGroup
	wg.Add(attempts)
	for range attempts {
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeIssuedCode(ctx, "RACE"); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("concurrent consume successes = %d, want exactly 1", got)
	}
}

func TestStore_CleanupRemovesExpired(t *testing.T) {
	store := NewWithInterval(10 * time.Millisecond)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if err := store.SavePendingAuthorization(ctx, pendingFixture("soon", 5*time.Millisecond)); err != nil {
		t.Fatalf("SavePendingAuthorization() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for store.pending.len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("cleanup did not remove expired entry within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	store := New()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
