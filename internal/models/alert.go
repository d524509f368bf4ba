package models

import (
	"encoding/json"
	"time"
)

// AlertType 报警类型（封闭枚举，新增类型需同步 NotificationNature 映射）
type AlertType string

const (
	AlertTypeFreezerTemperature AlertType = "FREEZER_TEMPERATURE"
	AlertTypeFreezerHumidity    AlertType = "FREEZER_HUMIDITY"
	AlertTypeEquipmentFailure   AlertType = "EQUIPMENT_FAILURE"
	AlertTypeInventoryLow       AlertType = "INVENTORY_LOW"
)

// AlertSeverity 报警级别
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// AlertStatus 报警状态，只允许前向流转：
// OPEN → ACKNOWLEDGED → RESOLVED，或 OPEN → RESOLVED
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "OPEN"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
)

// Alert 报警实体（对应 alerts 表）
// 同一 (entity_type, entity_id, alert_type) 同时最多一条 OPEN/ACKNOWLEDGED 报警
type Alert struct {
	ID         string        `json:"id" db:"id"`
	AlertType  AlertType     `json:"alert_type" db:"alert_type"`
	EntityType string        `json:"entity_type" db:"entity_type"`
	EntityID   string        `json:"entity_id" db:"entity_id"`
	Severity   AlertSeverity `json:"severity" db:"severity"`
	Status     AlertStatus   `json:"status" db:"status"`
	StartTime  time.Time     `json:"start_time" db:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty" db:"end_time"`
	Message    string        `json:"message" db:"message"`

	// 结构化上下文（JSONB），冷库温度报警存 AlertContext
	ContextData json.RawMessage `json:"context_data" db:"context_data"`

	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy  *string    `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy      *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty" db:"resolution_notes"`

	DuplicateCount    int        `json:"duplicate_count" db:"duplicate_count"`
	LastDuplicateTime *time.Time `json:"last_duplicate_time,omitempty" db:"last_duplicate_time"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsActive OPEN 或 ACKNOWLEDGED 视为活跃（可吸收重复越界）
func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusOpen || a.Status == AlertStatusAcknowledged
}

// LastActivity 最近一次活动时间（去重窗口判断用）
func (a *Alert) LastActivity() time.Time {
	if a.LastDuplicateTime != nil {
		return *a.LastDuplicateTime
	}
	return a.StartTime
}

// AlertContext 冷库阈值报警的上下文快照（JSONB 结构）
type AlertContext struct {
	Value          float64       `json:"value"`
	ThresholdValue float64       `json:"threshold_value"`
	ThresholdKind  ThresholdKind `json:"threshold_kind"`
	Metric         Metric        `json:"metric"`
	ReadingID      string        `json:"reading_id"`
	Resolution     string        `json:"resolution,omitempty"` // auto-cleared / superseded
}
