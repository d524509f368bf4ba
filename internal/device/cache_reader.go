package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coldstore-monitor/internal/config"
	"coldstore-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheReader 从 Redis 缓存读取设备最新采样
// 网关通过 MQTT 上报，ingest 消费者写入缓存，这里只读
// 采样超过 Cache.MaxSampleAge 视为设备不可达
type CacheReader struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheReader 创建缓存读取器
func NewCacheReader(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheReader {
	return &CacheReader{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// sampleKey 构建最新采样缓存键
func (r *CacheReader) sampleKey(deviceAddress string) string {
	return r.config.Cache.SampleKeyPrefix + deviceAddress + r.config.Cache.SampleSuffix
}

// Read 读取设备最新采样
func (r *CacheReader) Read(ctx context.Context, freezer *models.Freezer) (*models.Sample, error) {
	address := freezer.DeviceAddress
	if address == "" {
		address = freezer.FreezerID
	}

	data, err := r.redisClient.Get(ctx, r.sampleKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: freezer %s", ErrNoSample, freezer.FreezerID)
		}
		return nil, fmt.Errorf("%w: failed to get sample for freezer %s: %v", models.ErrTransport, freezer.FreezerID, err)
	}

	var sample models.Sample
	if err := json.Unmarshal([]byte(data), &sample); err != nil {
		return nil, fmt.Errorf("%w: malformed sample for freezer %s: %v", models.ErrTransport, freezer.FreezerID, err)
	}

	maxAge := time.Duration(r.config.Cache.MaxSampleAge) * time.Second
	if age := time.Since(sample.RecordedTime()); age > maxAge {
		return nil, fmt.Errorf("%w: freezer %s sample age %s exceeds %s", ErrStaleSample, freezer.FreezerID, age.Round(time.Second), maxAge)
	}

	return &sample, nil
}
