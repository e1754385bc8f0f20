package testsupport

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"fingerid/internal/config"
	"fingerid/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewIdentity creates an identity with the given password, role and status.
func NewIdentity(t testing.TB, st *store.Store, username, password string, role store.Role, status store.Status) *store.Identity {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	identity := &store.Identity{
		Username:     username,
		PasswordHash: string(hash),
		RealName:     username,
		Role:         role,
		Status:       status,
	}
	if err := st.CreateIdentity(context.Background(), identity); err != nil {
		t.Fatalf("store.CreateIdentity: %v", err)
	}
	return identity
}
