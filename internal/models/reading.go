package models

import (
	"time"
)

// TransportStatus 采集传输状态
type TransportStatus string

const (
	TransportOK      TransportStatus = "ok"
	TransportTimeout TransportStatus = "timeout"
	TransportError   TransportStatus = "error"
)

// Reading 冷库读数（对应 freezer_readings 表）
// 每台设备每个轮询周期产生一条，写入后不再修改，供报表聚合使用
type Reading struct {
	ReadingID    string          `json:"reading_id" db:"reading_id"`
	FreezerID    string          `json:"freezer_id" db:"freezer_id"`
	RecordedAt   time.Time       `json:"recorded_at" db:"recorded_at"`
	Temperature  float64         `json:"temperature" db:"temperature"`
	Humidity     *float64        `json:"humidity,omitempty" db:"humidity"`
	Status       ReadingStatus   `json:"status" db:"status"`
	Transport    TransportStatus `json:"transport" db:"transport"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// ReadingStatus 读数的阈值评估结果
type ReadingStatus string

const (
	ReadingNormal   ReadingStatus = "NORMAL"
	ReadingWarning  ReadingStatus = "WARNING"
	ReadingCritical ReadingStatus = "CRITICAL"
)

// Sample 网关上报的原始采样（从 Redis 缓存读取，与 ingest 保持一致）
type Sample struct {
	FreezerID   string   `json:"freezer_id"`
	Temperature float64  `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Timestamp   int64    `json:"timestamp"` // Unix 时间戳（网关采样时间）
}

// RecordedTime 采样时间
func (s *Sample) RecordedTime() time.Time {
	return time.Unix(s.Timestamp, 0)
}
