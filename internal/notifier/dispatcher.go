package notifier

import (
	"context"
	"encoding/json"
	"time"

	"coldstore-monitor/internal/config"
	"coldstore-monitor/internal/lifecycle"
	"coldstore-monitor/internal/models"
	redisutil "coldstore-monitor/pkg/redis"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ConfigSource 通知配置查询（NotificationConfigRepository 实现）
type ConfigSource interface {
	GetActiveByNature(ctx context.Context, nature models.NotificationNature) ([]models.NotificationConfigOption, error)
}

// notificationMessage 投递给下游的通知载荷
// EMAIL/SMS 经 Redis Stream 交给独立的投递服务，WEBHOOK 直接 POST
type notificationMessage struct {
	Action             string                    `json:"action"` // created / acknowledged / resolved
	Nature             models.NotificationNature `json:"nature"`
	Method             models.NotificationMethod `json:"method"`
	Recipient          string                    `json:"recipient"`
	AdditionalContacts []string                  `json:"additional_contacts,omitempty"`
	Alert              *models.Alert             `json:"alert"`
	Notes              string                    `json:"notes,omitempty"`
	SentAt             int64                     `json:"sent_at"`
}

// Dispatcher 通知派发器
// 消费生命周期事件并按通知配置路由，全程尽力而为：
// 派发失败只记日志，绝不影响已提交的报警状态
type Dispatcher struct {
	config      *config.Config
	configs     ConfigSource
	redisClient *redis.Client
	httpClient  *resty.Client
	logger      *zap.Logger
}

// NewDispatcher 创建通知派发器
func NewDispatcher(
	cfg *config.Config,
	configs ConfigSource,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Dispatcher {
	httpClient := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Dispatcher{
		config:      cfg,
		configs:     configs,
		redisClient: redisClient,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// deliveryGroup 下游投递服务消费通知流所用的消费者组
const deliveryGroup = "delivery"

// Run 消费事件直到通道关闭或 ctx 取消
func (d *Dispatcher) Run(ctx context.Context, events <-chan lifecycle.Event) {
	// 预建通知流与消费者组，投递服务起晚了也不丢组位点
	if err := redisutil.CreateConsumerGroup(ctx, d.redisClient, d.config.Notify.Stream, deliveryGroup); err != nil {
		d.logger.Warn("Failed to create delivery consumer group",
			zap.String("stream", d.config.Notify.Stream),
			zap.Error(err),
		)
	}

	d.logger.Info("Notification dispatcher started",
		zap.String("stream", d.config.Notify.Stream),
	)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				d.logger.Info("Notification dispatcher stopped, event bus closed")
				return
			}
			d.Dispatch(ctx, event)
		case <-ctx.Done():
			d.logger.Info("Notification dispatcher stopped")
			return
		}
	}
}

// Dispatch 处理单个生命周期事件
func (d *Dispatcher) Dispatch(ctx context.Context, event lifecycle.Event) {
	switch e := event.(type) {
	case lifecycle.AlertCreated:
		d.notify(ctx, "created", e.Alert, "")
		d.updateAlertCache(ctx, e.Alert)
	case lifecycle.AlertDuplicate:
		// 去重吸收不重复打扰接收人，只刷新缓存
		d.updateAlertCache(ctx, e.Alert)
	case lifecycle.AlertAcknowledged:
		d.notify(ctx, "acknowledged", e.Alert, e.Notes)
		d.updateAlertCache(ctx, e.Alert)
	case lifecycle.AlertResolved:
		d.notify(ctx, "resolved", e.Alert, e.Notes)
		d.updateAlertCache(ctx, e.Alert)
	case lifecycle.ThresholdViolated:
		d.logger.Debug("Threshold violated",
			zap.String("freezer_id", e.FreezerID),
			zap.String("kind", string(e.Kind)),
			zap.Float64("value", e.Value),
		)
	}
}

// notify 按通知配置把事件路由到各通道
func (d *Dispatcher) notify(ctx context.Context, action string, alert *models.Alert, notes string) {
	nature, ok := models.NatureForAlertType(alert.AlertType)
	if !ok {
		return
	}

	options, err := d.configs.GetActiveByNature(ctx, nature)
	if err != nil {
		d.logger.Error("Failed to load notification config",
			zap.String("nature", string(nature)),
			zap.Error(err),
		)
		return
	}

	for _, option := range options {
		message := notificationMessage{
			Action:             action,
			Nature:             nature,
			Method:             option.Method,
			Recipient:          option.Recipient,
			AdditionalContacts: option.AdditionalContacts,
			Alert:              alert,
			Notes:              notes,
			SentAt:             time.Now().Unix(),
		}

		switch option.Method {
		case models.MethodWebhook:
			d.sendWebhook(ctx, option, message)
		case models.MethodEmail, models.MethodSMS:
			d.enqueueDelivery(ctx, message)
		default:
			d.logger.Warn("Unknown notification method",
				zap.String("method", string(option.Method)),
			)
		}
	}
}

// sendWebhook POST 到配置的回调地址（recipient 优先，否则用全局地址）
func (d *Dispatcher) sendWebhook(ctx context.Context, option models.NotificationConfigOption, message notificationMessage) {
	url := option.Recipient
	if url == "" {
		url = d.config.Notify.WebhookURL
	}
	if url == "" {
		d.logger.Warn("Webhook option has no target URL",
			zap.String("option_id", option.ID),
		)
		return
	}

	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(url)

	if err != nil {
		d.logger.Error("Webhook delivery failed",
			zap.String("url", url),
			zap.String("alert_id", message.Alert.ID),
			zap.Error(err),
		)
		return
	}
	if resp.IsError() {
		d.logger.Error("Webhook returned error status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode()),
			zap.String("alert_id", message.Alert.ID),
		)
		return
	}

	d.logger.Debug("Webhook delivered",
		zap.String("url", url),
		zap.String("alert_id", message.Alert.ID),
	)
}

// enqueueDelivery EMAIL/SMS 投递交给下游服务，经 Redis Stream 移交
func (d *Dispatcher) enqueueDelivery(ctx context.Context, message notificationMessage) {
	if _, err := redisutil.PublishJSONToStream(ctx, d.redisClient, d.config.Notify.Stream, message); err != nil {
		d.logger.Error("Failed to enqueue notification",
			zap.String("stream", d.config.Notify.Stream),
			zap.String("method", string(message.Method)),
			zap.String("alert_id", message.Alert.ID),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("Notification enqueued",
		zap.String("method", string(message.Method)),
		zap.String("alert_id", message.Alert.ID),
	)
}

// updateAlertCache 维护每台设备的活跃报警缓存
// 活跃报警写入带 TTL 的键，解除后删除
func (d *Dispatcher) updateAlertCache(ctx context.Context, alert *models.Alert) {
	key := d.config.Cache.AlertKeyPrefix + alert.EntityID + d.config.Cache.AlertSuffix

	if !alert.IsActive() {
		if err := d.redisClient.Del(ctx, key).Err(); err != nil {
			d.logger.Warn("Failed to clear alert cache",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return
	}

	data, err := json.Marshal(alert)
	if err != nil {
		d.logger.Warn("Failed to marshal alert for cache",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return
	}

	ttl := time.Duration(d.config.Cache.AlertTTL) * time.Second
	if err := d.redisClient.Set(ctx, key, data, ttl).Err(); err != nil {
		d.logger.Warn("Failed to update alert cache",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
