package possync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidSettings is returned for settings that cannot be saved.
var ErrInvalidSettings = errors.New("possync: invalid settings")

// Settings is the per-tenant outbound write policy.
type Settings struct {
	OrgID        string    `json:"org_id"`
	WriteEnabled bool      `json:"write_enabled"`
	BranchID     string    `json:"branch_id,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Location resolves the tenant timezone, defaulting to UTC.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SettingsStore keeps sync settings in Redis.
type SettingsStore struct {
	redis *redis.Client
}

// NewSettingsStore creates a new sync settings store.
func NewSettingsStore(redisClient *redis.Client) *SettingsStore {
	return &SettingsStore{redis: redisClient}
}

func (s *SettingsStore) key(orgID string) string {
	return fmt.Sprintf("possync:settings:%s", orgID)
}

// Get returns the tenant's settings. Tenants that never configured sync get
// write disabled.
func (s *SettingsStore) Get(ctx context.Context, orgID string) (Settings, error) {
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return Settings{OrgID: orgID}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("possync: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("possync: unmarshal settings: %w", err)
	}
	settings.OrgID = orgID
	return settings, nil
}

// Set saves the tenant's settings.
func (s *SettingsStore) Set(ctx context.Context, settings Settings) error {
	if settings.OrgID == "" {
		return fmt.Errorf("%w: org id required", ErrInvalidSettings)
	}
	if settings.Timezone != "" {
		if _, err := time.LoadLocation(settings.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalidSettings, settings.Timezone, err)
		}
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("possync: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(settings.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("possync: set settings: %w", err)
	}
	return nil
}
