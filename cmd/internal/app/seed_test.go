package app

import (
	"context"
	"testing"

	"tdp/cmd/identity"
	"tdp/cmd/internal/features"
	"tdp/cmd/security/password"
)

func fastHasher() password.Config {
	c := password.DefaultConfig()
	c.Params.MemoryKiB = 8 * 1024
	c.Params.Iterations = 1
	c.Params.Parallelism = 1
	return c
}

func TestParseSeed_Embedded(t *testing.T) {
	sf, err := parseSeed(seedYAML)
	if err != nil {
		t.Fatalf("parseSeed: %v", err)
	}
	if len(sf.Features) != 5 {
		t.Fatalf("features=%d", len(sf.Features))
	}
	if len(sf.Admin.Features) != 1 || sf.Admin.Features[0] != features.AdminFeature {
		t.Fatalf("admin features=%v", sf.Admin.Features)
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	if _, err := parseSeed([]byte("features: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	users := identity.NewMemoryStore()
	store := features.NewMemoryStore(users)
	cfg := testConfig()
	h := fastHasher()

	for i := 0; i < 2; i++ {
		if err := Seed(ctx, discardLogger(), cfg, users, store, h); err != nil {
			t.Fatalf("Seed #%d: %v", i, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("features after two seeds=%d", len(list))
	}

	ua, err := users.GetUserAuthByEmail(ctx, cfg.SeedAdminEmail)
	if err != nil {
		t.Fatalf("admin missing: %v", err)
	}
	if !h.Verify(ua.PasswordHash, cfg.SeedAdminPassword) {
		t.Fatalf("admin password does not verify")
	}
	ok, err := store.HasFeature(ctx, ua.User.ID, features.AdminFeature)
	if err != nil || !ok {
		t.Fatalf("admin lacks %s: ok=%v err=%v", features.AdminFeature, ok, err)
	}
}
