package models

// NotificationNature 通知类别（与报警类型一一映射）
type NotificationNature string

const (
	NatureFreezerTemperatureAlert NotificationNature = "FREEZER_TEMPERATURE_ALERT"
	NatureEquipmentAlert          NotificationNature = "EQUIPMENT_ALERT"
	NatureInventoryAlert          NotificationNature = "INVENTORY_ALERT"
)

// NotificationMethod 通知方式
type NotificationMethod string

const (
	MethodEmail   NotificationMethod = "EMAIL"
	MethodSMS     NotificationMethod = "SMS"
	MethodWebhook NotificationMethod = "WEBHOOK"
)

// NotificationConfigOption 通知配置项（对应 notification_config_options 表）
// 对本服务只读，决定某类报警是否/如何派发
type NotificationConfigOption struct {
	ID                 string             `json:"id" db:"id"`
	Nature             NotificationNature `json:"nature" db:"nature"`
	Method             NotificationMethod `json:"method" db:"method"`
	Active             bool               `json:"active" db:"active"`
	Recipient          string             `json:"recipient" db:"recipient"`
	AdditionalContacts []string           `json:"additional_contacts,omitempty" db:"additional_contacts"`
}

// NatureForAlertType 报警类型到通知类别的映射
// 无映射的类型不派发通知
func NatureForAlertType(alertType AlertType) (NotificationNature, bool) {
	switch alertType {
	case AlertTypeFreezerTemperature, AlertTypeFreezerHumidity:
		return NatureFreezerTemperatureAlert, true
	case AlertTypeEquipmentFailure:
		return NatureEquipmentAlert, true
	case AlertTypeInventoryLow:
		return NatureInventoryAlert, true
	}
	return "", false
}
