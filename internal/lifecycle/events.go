package lifecycle

import (
	"time"

	"coldstore-monitor/internal/models"

	"go.uber.org/zap"
)

// Event 报警生命周期事件（类型化值，经 Publisher 派发给下游）
type Event interface {
	EventName() string
}

// AlertCreated 新报警创建
type AlertCreated struct {
	Alert     *models.Alert
	CreatedAt time.Time
}

func (AlertCreated) EventName() string { return "alert.created" }

// AlertDuplicate 重复越界被已有报警吸收（轻量信号，仅用于遥测，不触发通知）
type AlertDuplicate struct {
	Alert          *models.Alert
	DuplicateCount int
	At             time.Time
}

func (AlertDuplicate) EventName() string { return "alert.duplicate" }

// AlertAcknowledged 报警被确认
type AlertAcknowledged struct {
	Alert          *models.Alert
	UserID         string
	Notes          string
	AcknowledgedAt time.Time
}

func (AlertAcknowledged) EventName() string { return "alert.acknowledged" }

// AlertResolved 报警被解除（人工或自动）
type AlertResolved struct {
	Alert      *models.Alert
	UserID     string
	Notes      string
	ResolvedAt time.Time
}

func (AlertResolved) EventName() string { return "alert.resolved" }

// ThresholdViolated 阈值越界（每次越界都发，与报警去重无关）
type ThresholdViolated struct {
	FreezerID      string
	Value          float64
	ThresholdValue float64
	Kind           models.ThresholdKind
	Metric         models.Metric
	ReadingID      string
	DetectedAt     time.Time
}

func (ThresholdViolated) EventName() string { return "threshold.violated" }

// Publisher 生命周期事件发布接口
// 发布必须是尽力而为的：通知失败不回滚已提交的报警状态
type Publisher interface {
	Publish(event Event)
}

// ChannelBus 带缓冲通道的事件总线（进程内派发）
// 缓冲满时丢弃事件并记录日志，不阻塞报警处理
type ChannelBus struct {
	events chan Event
	logger *zap.Logger
}

// NewChannelBus 创建事件总线
func NewChannelBus(bufferSize int, logger *zap.Logger) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelBus{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Publish 发布事件（非阻塞）
func (b *ChannelBus) Publish(event Event) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn("Event bus full, dropping event",
			zap.String("event", event.EventName()),
		)
	}
}

// Events 事件消费通道
func (b *ChannelBus) Events() <-chan Event {
	return b.events
}

// Close 关闭总线（发布方停止后调用）
func (b *ChannelBus) Close() {
	close(b.events)
}
