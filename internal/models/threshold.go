package models

import (
	"fmt"
	"time"
)

// ThresholdKind 阈值越界类型（检查顺序固定：critical 先于 warning，高侧先于低侧）
type ThresholdKind string

const (
	ThresholdCriticalHigh ThresholdKind = "CRITICAL_HIGH"
	ThresholdWarningHigh  ThresholdKind = "WARNING_HIGH"
	ThresholdCriticalLow  ThresholdKind = "CRITICAL_LOW"
	ThresholdWarningLow   ThresholdKind = "WARNING_LOW"
)

// Severity 返回该越界类型对应的报警级别
func (k ThresholdKind) Severity() AlertSeverity {
	switch k {
	case ThresholdCriticalHigh, ThresholdCriticalLow:
		return SeverityCritical
	case ThresholdWarningHigh, ThresholdWarningLow:
		return SeverityWarning
	}
	return SeverityInfo
}

// ThresholdProfile 阈值配置档案（对应 threshold_profiles 表）
// 所有边界均可缺省，缺省侧视为无界
type ThresholdProfile struct {
	ProfileID   string   `json:"profile_id" db:"profile_id"`
	Name        string   `json:"name" db:"name"`
	CriticalMax *float64 `json:"critical_max,omitempty" db:"critical_max"`
	WarningMax  *float64 `json:"warning_max,omitempty" db:"warning_max"`
	WarningMin  *float64 `json:"warning_min,omitempty" db:"warning_min"`
	CriticalMin *float64 `json:"critical_min,omitempty" db:"critical_min"`

	// 湿度边界（可选）
	HumidityCriticalMax *float64 `json:"humidity_critical_max,omitempty" db:"humidity_critical_max"`
	HumidityWarningMax  *float64 `json:"humidity_warning_max,omitempty" db:"humidity_warning_max"`
	HumidityWarningMin  *float64 `json:"humidity_warning_min,omitempty" db:"humidity_warning_min"`
	HumidityCriticalMin *float64 `json:"humidity_critical_min,omitempty" db:"humidity_critical_min"`
}

// Validate 校验边界顺序：criticalMax ≥ warningMax > warningMin ≥ criticalMin
// 仅校验同时存在的相邻边界
func (p *ThresholdProfile) Validate() error {
	if p.CriticalMax != nil && p.WarningMax != nil && *p.CriticalMax < *p.WarningMax {
		return fmt.Errorf("%w: critical_max %.2f < warning_max %.2f", ErrConfiguration, *p.CriticalMax, *p.WarningMax)
	}
	if p.WarningMax != nil && p.WarningMin != nil && *p.WarningMax <= *p.WarningMin {
		return fmt.Errorf("%w: warning_max %.2f <= warning_min %.2f", ErrConfiguration, *p.WarningMax, *p.WarningMin)
	}
	if p.WarningMin != nil && p.CriticalMin != nil && *p.WarningMin < *p.CriticalMin {
		return fmt.Errorf("%w: warning_min %.2f < critical_min %.2f", ErrConfiguration, *p.WarningMin, *p.CriticalMin)
	}
	return nil
}

// Violation 阈值越界描述（瞬态，不落库，立即交给生命周期管理器消费）
type Violation struct {
	FreezerID      string        `json:"freezer_id"`
	ReadingID      string        `json:"reading_id"`
	Value          float64       `json:"value"`
	ThresholdValue float64       `json:"threshold_value"`
	Kind           ThresholdKind `json:"kind"`
	Metric         Metric        `json:"metric"`
	DetectedAt     time.Time     `json:"detected_at"`
}

// Metric 被评估的量纲
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
)

// AlertType 返回该量纲越界对应的报警类型
func (m Metric) AlertType() AlertType {
	if m == MetricHumidity {
		return AlertTypeFreezerHumidity
	}
	return AlertTypeFreezerTemperature
}
