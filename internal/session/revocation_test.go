package session_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"fingerid/internal/session"
)

func TestMemoryRevocationStore(t *testing.T) {
	testRevocationStore(t, session.NewMemoryRevocations())
}

// Set FINGERID_REDIS_ADDR to run against a live server.
func TestRedisRevocationStore(t *testing.T) {
	addr := os.Getenv("FINGERID_REDIS_ADDR")
	if addr == "" {
		t.Skip("FINGERID_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := session.NewRedisRevocations(ctx, addr, os.Getenv("FINGERID_REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("NewRedisRevocations(%s): %v", addr, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	testRevocationStore(t, store)
}

func TestRedisRevocationsUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := session.NewRedisRevocations(ctx, "127.0.0.1:1", "", 0); err == nil {
		t.Fatal("expected connection error for closed port")
	}
}

func testRevocationStore(t *testing.T, store session.RevocationStore) {
	t.Helper()
	ctx := context.Background()
	id := func() string { return uuid.NewString() }

	unknown := id()
	if revoked, err := store.Revoked(ctx, unknown); err != nil || revoked {
		t.Fatalf("Revoked(unknown) = %v, %v", revoked, err)
	}

	live := id()
	if err := store.Revoke(ctx, live, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke(live): %v", err)
	}
	if revoked, err := store.Revoked(ctx, live); err != nil || !revoked {
		t.Fatalf("Revoked(live) = %v, %v", revoked, err)
	}

	past := id()
	if err := store.Revoke(ctx, past, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Revoke(past): %v", err)
	}
	if revoked, err := store.Revoked(ctx, past); err != nil || revoked {
		t.Fatalf("Revoked(past) = %v, %v", revoked, err)
	}

	short := id()
	if err := store.Revoke(ctx, short, time.Now().Add(300*time.Millisecond)); err != nil {
		t.Fatalf("Revoke(short): %v", err)
	}
	if revoked, err := store.Revoked(ctx, short); err != nil || !revoked {
		t.Fatalf("Revoked(short) before expiry = %v, %v", revoked, err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		revoked, err := store.Revoked(ctx, short)
		if err != nil {
			t.Fatalf("Revoked(short): %v", err)
		}
		if !revoked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("revocation outlived its expiry")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if revoked, err := store.Revoked(ctx, live); err != nil || !revoked {
		t.Fatalf("Revoked(live) after sibling expiry = %v, %v", revoked, err)
	}
}
