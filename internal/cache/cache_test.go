package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
)

func TestMemorySettingsCacheExpires(t *testing.T) {
	c := NewMemorySettingsCache()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "usr-admin", &domain.Settings{OwnerID: "usr-admin", DefaultTax: decimal.NewFromInt(11)}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "usr-admin")
	if err != nil || !ok || !got.DefaultTax.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("expected cached settings, got %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := c.Get(ctx, "usr-other"); ok {
		t.Fatalf("cache must be keyed per tenant")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "usr-admin"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestMemorySettingsCacheDelete(t *testing.T) {
	c := NewMemorySettingsCache()
	ctx := context.Background()
	_ = c.Set(ctx, "usr-admin", &domain.Settings{OwnerID: "usr-admin"}, 0)
	_ = c.Delete(ctx, "usr-admin")
	if _, ok, _ := c.Get(ctx, "usr-admin"); ok {
		t.Fatalf("expected entry to be deleted")
	}
}

func TestRedisSettingsCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("PHARMALEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set PHARMALEDGER_TEST_REDIS_ADDR to run redis integration test")
	}
	c := NewRedisSettingsCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	tenantID := "usr-it-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = c.Delete(ctx, tenantID) })
	if err := c.Set(ctx, tenantID, &domain.Settings{OwnerID: tenantID, DefaultTax: decimal.RequireFromString("12.5")}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, tenantID)
	if err != nil || !ok || !got.DefaultTax.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected cached value %+v ok=%v err=%v", got, ok, err)
	}
}
