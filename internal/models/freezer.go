package models

// Freezer 冷库设备（对应 freezers 表）
type Freezer struct {
	FreezerID string `json:"freezer_id" db:"freezer_id"`
	Name      string `json:"name" db:"name"`
	Location  string `json:"location" db:"location"`

	// 网关上报地址（MQTT 主题后缀 / 缓存键），由 ingest 与 device 层共用
	DeviceAddress string `json:"device_address" db:"device_address"`

	// 简易阈值（未分配阈值档案时的回退配置）：
	// 以目标温度为中心，warning/critical 为允许偏差
	TargetTemperature *float64 `json:"target_temperature,omitempty" db:"target_temperature"`
	WarningThreshold  *float64 `json:"warning_threshold,omitempty" db:"warning_threshold"`
	CriticalThreshold *float64 `json:"critical_threshold,omitempty" db:"critical_threshold"`

	Active bool `json:"active" db:"active"`
}

// EntityType Alert 关联实体类型固定为 "Freezer"
const EntityTypeFreezer = "Freezer"

// SimpleProfile 由简易阈值推导出的阈值档案，无任何简易阈值时返回 nil
func (f *Freezer) SimpleProfile() *ThresholdProfile {
	if f.TargetTemperature == nil {
		return nil
	}
	if f.WarningThreshold == nil && f.CriticalThreshold == nil {
		return nil
	}

	target := *f.TargetTemperature
	profile := &ThresholdProfile{Name: "simple:" + f.Name}

	if f.WarningThreshold != nil {
		warnHigh := target + *f.WarningThreshold
		warnLow := target - *f.WarningThreshold
		profile.WarningMax = &warnHigh
		profile.WarningMin = &warnLow
	}
	if f.CriticalThreshold != nil {
		critHigh := target + *f.CriticalThreshold
		critLow := target - *f.CriticalThreshold
		profile.CriticalMax = &critHigh
		profile.CriticalMin = &critLow
	}

	return profile
}
