package middleware

import (
	"context"  // Context for loading users
	"net/http" // HTTP status codes
	"time"     // Cache TTL

	"transaction_system/internal/domain" // Importing domain models
	"transaction_system/internal/utils"  // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// UserLoader fetches a user with their permission grants
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// RequirePermission checks the user's grants on each request, through a Redis
// read-through cache in front of the database. A revoked permission takes
// effect within the cache TTL rather than the token lifetime; a cache error
// falls through to the database and is never a denial on its own.
func RequirePermission(users UserLoader, rdb *redis.Client, cacheTTL time.Duration, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		user, err := loadUser(c.Request.Context(), users, rdb, cacheTTL, userID.(string))
		if err != nil || user == nil {
			// If user not found or any error, abort with forbidden status
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		// Check the required permission; admin:access implies everything
		if !user.HasPermission(permission) && !user.HasPermission(domain.PermissionAdminAccess) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		// If permitted, proceed to the next handler
		c.Next()
	}
}

// loadUser fetches a user through the cache, falling back to the loader
func loadUser(ctx context.Context, users UserLoader, rdb *redis.Client, cacheTTL time.Duration, userID string) (*domain.User, error) {
	cacheKey := utils.UserCacheKey(userID)
	if rdb != nil {
		var cached domain.User
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			return &cached, nil
		}
	}
	user, err := users.GetByID(ctx, userID)
	if err != nil || user == nil {
		return user, err
	}
	if rdb != nil {
		_ = utils.SetCache(ctx, rdb, cacheKey, user, cacheTTL) // Best effort
	}
	return user, nil
}
