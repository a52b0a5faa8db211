package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"crmsync/internal/models"
	"crmsync/internal/repository"
)

const (
	featureSyncPrefix      = "feature.sync."
	FeatureSyncOrigins     = featureSyncPrefix + EntityOrigins
	FeatureSyncStages      = featureSyncPrefix + EntityStages
	FeatureSyncContacts    = featureSyncPrefix + EntityContacts
	FeatureSyncDeals       = featureSyncPrefix + EntityDeals
	FeatureSyncOriginDeals = featureSyncPrefix + "origin_deals"
	FeatureSyncScheduler   = featureSyncPrefix + "scheduler"
)

func FeatureKey(entity string) string {
	return featureSyncPrefix + strings.ToLower(strings.TrimSpace(entity))
}

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureSyncOrigins:     true,
		FeatureSyncStages:      true,
		FeatureSyncContacts:    true,
		FeatureSyncDeals:       true,
		FeatureSyncOriginDeals: true,
		FeatureSyncScheduler:   true,
	}
}

type SystemSettingsService struct {
	Repo repository.SettingsRepository
}

type FeatureSwitch struct {
	Key       string    `json:"key"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnsureDefaultSwitches writes missing switches with their default value.
// Existing rows are left as operators set them.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// ListSwitches returns the stored feature.sync.* switches sorted by key.
func (s *SystemSettingsService) ListSwitches(ctx context.Context) ([]FeatureSwitch, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	prefix := featureSyncPrefix
	items, err := s.Repo.ListSystemSettings(ctx, repository.ListSystemSettingsParams{Prefix: &prefix, Limit: 500})
	if err != nil {
		return nil, err
	}
	out := make([]FeatureSwitch, 0, len(items))
	for _, item := range items {
		var enabled bool
		if err := json.Unmarshal(item.Value, &enabled); err != nil {
			continue
		}
		out = append(out, FeatureSwitch{Key: item.Key, Enabled: enabled, UpdatedAt: item.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func IsKnownSwitch(key string) bool {
	_, ok := DefaultFeatureSwitches()[strings.TrimSpace(key)]
	return ok
}
