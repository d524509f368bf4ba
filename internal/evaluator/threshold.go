package evaluator

import (
	"fmt"

	"coldstore-monitor/internal/models"
)

// ResolveProfile 解析设备适用的阈值档案
// 优先使用已分配的档案，否则回退到设备自身的简易阈值；
// 两者都没有时返回 ErrConfiguration（该设备本周期跳过评估）
func ResolveProfile(freezer *models.Freezer, assigned *models.ThresholdProfile) (*models.ThresholdProfile, error) {
	if assigned != nil {
		if err := assigned.Validate(); err != nil {
			return nil, err
		}
		return assigned, nil
	}

	if simple := freezer.SimpleProfile(); simple != nil {
		return simple, nil
	}

	return nil, fmt.Errorf("%w: no threshold profile resolvable for freezer %s", models.ErrConfiguration, freezer.FreezerID)
}

// Evaluate 对一条读数做阈值评估（纯函数，无副作用）
// 返回读数状态和越界描述列表（温度、湿度各至多一条）
func Evaluate(reading *models.Reading, profile *models.ThresholdProfile) (models.ReadingStatus, []models.Violation) {
	if profile == nil {
		return models.ReadingNormal, nil
	}

	var violations []models.Violation
	status := models.ReadingNormal

	if kind, threshold, ok := classify(reading.Temperature,
		profile.CriticalMax, profile.WarningMax, profile.CriticalMin, profile.WarningMin); ok {
		violations = append(violations, models.Violation{
			FreezerID:      reading.FreezerID,
			ReadingID:      reading.ReadingID,
			Value:          reading.Temperature,
			ThresholdValue: threshold,
			Kind:           kind,
			Metric:         models.MetricTemperature,
			DetectedAt:     reading.RecordedAt,
		})
		status = maxStatus(status, statusFor(kind))
	}

	if reading.Humidity != nil {
		if kind, threshold, ok := classify(*reading.Humidity,
			profile.HumidityCriticalMax, profile.HumidityWarningMax,
			profile.HumidityCriticalMin, profile.HumidityWarningMin); ok {
			violations = append(violations, models.Violation{
				FreezerID:      reading.FreezerID,
				ReadingID:      reading.ReadingID,
				Value:          *reading.Humidity,
				ThresholdValue: threshold,
				Kind:           kind,
				Metric:         models.MetricHumidity,
				DetectedAt:     reading.RecordedAt,
			})
			status = maxStatus(status, statusFor(kind))
		}
	}

	return status, violations
}

// classify 单值分类，检查顺序固定以保证可复现：
// criticalMax(≥) → warningMax(≥) → criticalMin(≤) → warningMin(≤)
// 缺省的边界视为不可触达，返回最强的单一分类
func classify(value float64, criticalMax, warningMax, criticalMin, warningMin *float64) (models.ThresholdKind, float64, bool) {
	if criticalMax != nil && value >= *criticalMax {
		return models.ThresholdCriticalHigh, *criticalMax, true
	}
	if warningMax != nil && value >= *warningMax {
		return models.ThresholdWarningHigh, *warningMax, true
	}
	if criticalMin != nil && value <= *criticalMin {
		return models.ThresholdCriticalLow, *criticalMin, true
	}
	if warningMin != nil && value <= *warningMin {
		return models.ThresholdWarningLow, *warningMin, true
	}
	return "", 0, false
}

func statusFor(kind models.ThresholdKind) models.ReadingStatus {
	if kind.Severity() == models.SeverityCritical {
		return models.ReadingCritical
	}
	return models.ReadingWarning
}

func maxStatus(a, b models.ReadingStatus) models.ReadingStatus {
	rank := map[models.ReadingStatus]int{
		models.ReadingNormal:   0,
		models.ReadingWarning:  1,
		models.ReadingCritical: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
