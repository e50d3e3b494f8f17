// Package middleware defines request tracking and route based authentication
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"emoji-api/internal/ctx"
	"emoji-api/internal/shared"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// UserLookup resolves an API key to the identity that owns it
type UserLookup interface {
	GetUserFromAPIKey(ctx context.Context, apiKey string) (*shared.UserMetadata, error)
}

type UserManager struct {
	redis redis.Cmdable
	users UserLookup
	log   *zap.SugaredLogger
}

// NewUserManager builds the user middleware. redisClient may be nil, in which
// case every request goes to the store.
func NewUserManager(redisClient redis.Cmdable, users UserLookup, log *zap.SugaredLogger) *UserManager {
	return &UserManager{redis: redisClient, users: users, log: log}
}

func (u *UserManager) ExtractUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		c.User = nil

		apiKey, err := shared.ExtractAPIKey(c)
		if err != nil {
			return next(c)
		}
		user, err := u.getUserMetadataFromKey(c.Request().Context(), apiKey)
		if err != nil {
			c.LogValues.AddError(err)
			return next(c)
		}
		c.User = user
		c.Log = c.Log.With("user_id", user.UserID)
		c.LogValues.UserID = user.UserID
		return next(c)
	}
}

func (u *UserManager) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		if c.User == nil {
			return c.JSON(shared.ErrUnauthorized.StatusCode, shared.ErrorResponse{Error: "Unauthorized"})
		}
		return next(c)
	}
}

func (u *UserManager) getUserMetadataFromKey(ctx context.Context, apiKey string) (*shared.UserMetadata, error) {
	userInfoCacheKey := fmt.Sprintf("v1:user:apikey:%s", apiKey)
	if u.redis != nil {
		userInfoCache, err := u.redis.Get(ctx, userInfoCacheKey).Result()
		switch {
		case err == nil:
			var userMetadata shared.UserMetadata
			if err := json.Unmarshal([]byte(userInfoCache), &userMetadata); err == nil && userMetadata.UserID != "" {
				userMetadata.APIKey = apiKey
				return &userMetadata, nil
			}
			u.log.Errorw("Error unmarshalling user info cache", "key", userInfoCacheKey)
		case errors.Is(err, redis.Nil):
			u.log.Debugw("User cache miss", "key", userInfoCacheKey)
		default:
			u.log.Warnw("Failed reading user cache", "error", err)
		}
	}

	userMetadata, err := u.users.GetUserFromAPIKey(ctx, apiKey)
	if err != nil {
		if err == shared.ErrUnauthorized {
			u.log.Warnw("Invalid API key")
			return nil, err
		}
		u.log.Errorw("Database error during API key validation", "error", err)
		return nil, err
	}

	if u.redis != nil {
		go func() {
			userInfoCache, err := json.Marshal(userMetadata)
			if err != nil {
				u.log.Errorw("Error marshalling user info", "error", err)
				return
			}
			if err := u.redis.Set(context.WithoutCancel(ctx), userInfoCacheKey, userInfoCache, shared.UserInfoCacheTTL).Err(); err != nil {
				u.log.Warnw("Failed to cache user info", "error", err)
			}
		}()
	}
	return userMetadata, nil
}
