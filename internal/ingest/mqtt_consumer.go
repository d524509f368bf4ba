package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coldstore-monitor/internal/config"
	"coldstore-monitor/internal/models"
	"coldstore-monitor/pkg/mqtt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力（pkg/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Consumer 遥测接入消费者
// 订阅网关遥测主题，把每台设备的最新采样写入 Redis 缓存，
// 供轮询调度器经 CacheReader 读取。只保留最新值，不做历史存储
type Consumer struct {
	config      *config.Config
	subscriber  Subscriber
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewConsumer 创建遥测接入消费者
func NewConsumer(
	cfg *config.Config,
	subscriber Subscriber,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		config:      cfg,
		subscriber:  subscriber,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 订阅遥测主题
func (c *Consumer) Start() error {
	topic := c.config.Ingest.Topic
	if err := c.subscriber.Subscribe(topic, c.config.MQTT.QoS, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe telemetry topic: %w", err)
	}

	c.logger.Info("Telemetry consumer started",
		zap.String("topic", topic),
	)
	return nil
}

// Stop 取消订阅
func (c *Consumer) Stop() {
	topic := c.config.Ingest.Topic
	if err := c.subscriber.Unsubscribe(topic); err != nil {
		c.logger.Warn("Failed to unsubscribe telemetry topic",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

// HandleMessage 处理一条网关遥测消息
// 主题格式 coldstore/telemetry/<device_address>，地址缺失时回退到载荷里的 freezer_id
func (c *Consumer) HandleMessage(topic string, payload []byte) error {
	var sample models.Sample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return fmt.Errorf("malformed telemetry payload on %s: %w", topic, err)
	}

	address := deviceAddressFromTopic(topic)
	if address == "" {
		address = sample.FreezerID
	}
	if address == "" {
		return fmt.Errorf("telemetry message on %s has no device address", topic)
	}

	// 网关未带时间戳时用接收时间
	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().Unix()
	}

	data, err := json.Marshal(&sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	key := c.config.Cache.SampleKeyPrefix + address + c.config.Cache.SampleSuffix
	ttl := 2 * time.Duration(c.config.Cache.MaxSampleAge) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.redisClient.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache sample for %s: %w", address, err)
	}

	c.logger.Debug("Sample cached",
		zap.String("device_address", address),
		zap.Float64("temperature", sample.Temperature),
	)
	return nil
}

// deviceAddressFromTopic 取主题最后一段作为设备地址
func deviceAddressFromTopic(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}
