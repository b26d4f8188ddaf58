package possync

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StaffMap stores internal to POS staff id mappings as one Redis hash per tenant.
type StaffMap struct {
	redis *redis.Client
}

// NewStaffMap stores staff mappings in Redis.
func NewStaffMap(redisClient *redis.Client) *StaffMap {
	return &StaffMap{redis: redisClient}
}

func (m *StaffMap) key(orgID string) string {
	return fmt.Sprintf("possync:staffmap:%s", orgID)
}

// ExternalStaffID returns the POS staff id and whether a mapping exists.
func (m *StaffMap) ExternalStaffID(ctx context.Context, orgID, staffID string) (string, bool, error) {
	if staffID == "" {
		return "", false, nil
	}
	ext, err := m.redis.HGet(ctx, m.key(orgID), staffID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("possync: get staff mapping: %w", err)
	}
	return ext, ext != "", nil
}

// Set maps staffID to externalStaffID. An empty external id removes the mapping.
func (m *StaffMap) Set(ctx context.Context, orgID, staffID, externalStaffID string) error {
	if staffID == "" {
		return fmt.Errorf("%w: staff id required", ErrInvalidSettings)
	}
	var err error
	if externalStaffID == "" {
		err = m.redis.HDel(ctx, m.key(orgID), staffID).Err()
	} else {
		err = m.redis.HSet(ctx, m.key(orgID), staffID, externalStaffID).Err()
	}
	if err != nil {
		return fmt.Errorf("possync: set staff mapping: %w", err)
	}
	return nil
}

// All returns every mapping for the tenant.
func (m *StaffMap) All(ctx context.Context, orgID string) (map[string]string, error) {
	out, err := m.redis.HGetAll(ctx, m.key(orgID)).Result()
	if err != nil {
		return nil, fmt.Errorf("possync: list staff mappings: %w", err)
	}
	return out, nil
}
