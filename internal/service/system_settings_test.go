package service

import (
	"context"
	"testing"

	"crmsync/internal/db/dbtest"
	gormrepository "crmsync/internal/repository/gorm"
)

func TestSystemSettings_DefaultsAndToggle(t *testing.T) {
	ctx := context.Background()
	settings := &SystemSettingsService{Repo: gormrepository.New(dbtest.Open(t))}

	if err := settings.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("ensure err=%v", err)
	}
	if !settings.IsEnabled(ctx, FeatureSyncDeals, false) {
		t.Fatalf("deals switch should default on")
	}
	if err := settings.SetEnabled(ctx, FeatureSyncDeals, false); err != nil {
		t.Fatalf("set err=%v", err)
	}
	if err := settings.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("ensure err=%v", err)
	}
	if settings.IsEnabled(ctx, FeatureSyncDeals, true) {
		t.Fatalf("operator switch-off was overwritten")
	}
	if !settings.IsEnabled(ctx, "feature.sync.unknown", true) {
		t.Fatalf("missing key should use fallback")
	}

	switches, err := settings.ListSwitches(ctx)
	if err != nil {
		t.Fatalf("list err=%v", err)
	}
	if len(switches) != len(DefaultFeatureSwitches()) {
		t.Fatalf("switches=%d want=%d", len(switches), len(DefaultFeatureSwitches()))
	}
	for i := 1; i < len(switches); i++ {
		if switches[i-1].Key > switches[i].Key {
			t.Fatalf("switches not sorted: %v", switches)
		}
	}
}

func TestFeatureKey(t *testing.T) {
	if got := FeatureKey(" Deals "); got != FeatureSyncDeals {
		t.Fatalf("got=%q want=%q", got, FeatureSyncDeals)
	}
	if !IsKnownSwitch(FeatureSyncScheduler) || IsKnownSwitch("feature.catalog_sync") {
		t.Fatalf("IsKnownSwitch mismatch")
	}
}
