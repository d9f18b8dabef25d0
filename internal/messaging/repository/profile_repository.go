package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nova_messaging_service/internal/messaging/domain"
	"nova_messaging_service/pkg/database"
	"nova_messaging_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const profileCacheTTL = 10 * time.Minute

// memberProfileClient fetch display data from the member service over HTTP
type memberProfileClient struct {
	baseURL string
}

// NewMemberProfileClient create the member service profile client
func NewMemberProfileClient(baseURL string) domain.ProfileProvider {
	return &memberProfileClient{baseURL: baseURL}
}

// GetUserProfile member service lookup
func (c *memberProfileClient) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	agent := fiber.Get(fmt.Sprintf("%s/member/profile/%s", c.baseURL, userID))
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("member service request failed: %v", errs[0])
	}
	if status != fiber.StatusOK {
		return nil, fmt.Errorf("member service returned %d", status)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

// cachedProfileProvider redis cache in front of the member service
type cachedProfileProvider struct {
	cache database.RedisRepository[domain.UserProfile]
	inner domain.ProfileProvider
}

// NewCachedProfileProvider wrap a ProfileProvider with a redis cache
func NewCachedProfileProvider(cache database.RedisRepository[domain.UserProfile], inner domain.ProfileProvider) domain.ProfileProvider {
	return &cachedProfileProvider{cache: cache, inner: inner}
}

// GetUserProfile cache hit or member service lookup
func (p *cachedProfileProvider) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	key := "profile:" + userID
	if cached, err := p.cache.Get(ctx, key); err == nil && cached.ID != "" {
		return &cached, nil
	}

	profile, err := p.inner.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, *profile, profileCacheTTL); err != nil {
		logger.Log.Warn(fmt.Sprintf("profile cache set failed: %v", err))
	}
	return profile, nil
}
