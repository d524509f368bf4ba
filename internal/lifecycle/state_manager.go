package lifecycle

import (
	"context"
	"fmt"
	"time"

	"coldstore-monitor/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StateManager 自动解除状态管理器
// 在 Redis 中维护每个去重键的连续正常读数计数
type StateManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *StateManager {
	return &StateManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// streakKey 构建连续正常计数键
func (s *StateManager) streakKey(entityType, entityID, alertType string) string {
	return fmt.Sprintf("%s%s:%s:%s:normal_streak",
		s.config.Cache.StateKeyPrefix,
		entityType,
		entityID,
		alertType,
	)
}

// IncrNormalStreak 递增连续正常读数计数，返回递增后的值
// 计数带 TTL，设备长时间无数据时自动过期归零
func (s *StateManager) IncrNormalStreak(ctx context.Context, entityType, entityID, alertType string) (int, error) {
	key := s.streakKey(entityType, entityID, alertType)

	count, err := s.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr normal streak: %w", err)
	}

	// 两个轮询间隔内无后续正常读数则计数过期
	ttl := 2 * s.config.Monitor.PollInterval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := s.redisClient.Expire(ctx, key, ttl).Err(); err != nil {
		s.logger.Warn("Failed to set streak TTL",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	return int(count), nil
}

// ResetNormalStreak 清零连续正常读数计数（出现越界时调用）
func (s *StateManager) ResetNormalStreak(ctx context.Context, entityType, entityID, alertType string) error {
	key := s.streakKey(entityType, entityID, alertType)

	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to reset normal streak: %w", err)
	}
	return nil
}
