package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"coldstore-monitor/pkg/config"
)

// Config 冷库监控服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 轮询调度配置
	Monitor struct {
		Enabled       bool          // false 时调度器不启动
		PollInterval  time.Duration // 两次轮询起始时刻的间隔
		InitialDelay  time.Duration // 首次轮询前的延迟
		TimeoutMillis int           // 单台设备读取超时（毫秒），建议 500–30000
		Retries       int           // 传输失败的额外重试次数，建议 0–5
	}

	// 报警生命周期配置
	Alert struct {
		DedupWindowMinutes int  // 去重窗口（分钟），窗口外的旧报警不再吸收重复
		AutoResolve        bool // 连续正常读数后自动解除（默认关闭）
		AutoResolveAfter   int  // 自动解除所需的连续正常次数
	}

	// Redis 缓存配置
	Cache struct {
		SampleKeyPrefix string // 最新采样缓存键前缀，如 "coldstore:freezer:"
		SampleSuffix    string // 最新采样缓存键后缀，如 ":latest"
		AlertKeyPrefix  string // 活跃报警缓存键前缀
		AlertSuffix     string // 活跃报警缓存键后缀
		AlertTTL        int    // 活跃报警缓存 TTL（秒）
		StateKeyPrefix  string // 自动解除计数状态键前缀，如 "alert:state:"
		MaxSampleAge    int    // 采样最大可用年龄（秒），超过视为设备不可达
	}

	// 通知派发配置
	Notify struct {
		Stream     string // 通知派发 Redis Stream
		WebhookURL string // WEBHOOK 方式的目标地址（可选）
	}

	// 遥测接入配置
	Ingest struct {
		Topic string // 网关遥测 MQTT 主题，如 "coldstore/telemetry/#"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置并校验
func Load() (*Config, error) {
	cfg := &Config{}

	// 先填默认值，再统一经 LoadFromEnv 覆盖
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "coldstore"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "coldstore-monitor"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	// 轮询调度
	cfg.Monitor.Enabled = getEnvBool("MONITOR_ENABLED", true)
	cfg.Monitor.PollInterval = time.Duration(getEnvInt("MONITOR_POLL_INTERVAL", 60)) * time.Second
	cfg.Monitor.InitialDelay = time.Duration(getEnvInt("MONITOR_INITIAL_DELAY", 10)) * time.Second
	cfg.Monitor.TimeoutMillis = getEnvInt("MONITOR_TIMEOUT_MILLIS", 5000)
	cfg.Monitor.Retries = getEnvInt("MONITOR_RETRIES", 2)

	// 报警生命周期
	cfg.Alert.DedupWindowMinutes = getEnvInt("ALERT_DEDUP_WINDOW_MINUTES", 30)
	cfg.Alert.AutoResolve = getEnvBool("ALERT_AUTO_RESOLVE", false)
	cfg.Alert.AutoResolveAfter = getEnvInt("ALERT_AUTO_RESOLVE_AFTER", 3)

	// 缓存
	cfg.Cache.SampleKeyPrefix = getEnv("CACHE_SAMPLE_PREFIX", "coldstore:freezer:")
	cfg.Cache.SampleSuffix = ":latest"
	cfg.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "coldstore:freezer:")
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.AlertTTL = getEnvInt("CACHE_ALERT_TTL", 120)
	cfg.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "alert:state:")
	cfg.Cache.MaxSampleAge = getEnvInt("CACHE_MAX_SAMPLE_AGE", 300)

	// 通知
	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "coldstore:notifications")
	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")

	// 遥测接入
	cfg.Ingest.Topic = getEnv("INGEST_TOPIC", "coldstore/telemetry/#")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 启动时校验可识别选项的取值范围
func (c *Config) Validate() error {
	if c.Monitor.TimeoutMillis < 500 || c.Monitor.TimeoutMillis > 30000 {
		return fmt.Errorf("MONITOR_TIMEOUT_MILLIS must be in [500, 30000], got %d", c.Monitor.TimeoutMillis)
	}
	if c.Monitor.Retries < 0 || c.Monitor.Retries > 5 {
		return fmt.Errorf("MONITOR_RETRIES must be in [0, 5], got %d", c.Monitor.Retries)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("MONITOR_POLL_INTERVAL must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.InitialDelay < 0 {
		return fmt.Errorf("MONITOR_INITIAL_DELAY must not be negative, got %s", c.Monitor.InitialDelay)
	}
	if c.Alert.AutoResolve && c.Alert.AutoResolveAfter <= 0 {
		return fmt.Errorf("ALERT_AUTO_RESOLVE_AFTER must be positive when auto-resolve is enabled, got %d", c.Alert.AutoResolveAfter)
	}
	if c.Alert.DedupWindowMinutes <= 0 {
		return fmt.Errorf("ALERT_DEDUP_WINDOW_MINUTES must be positive, got %d", c.Alert.DedupWindowMinutes)
	}
	return nil
}

// ReadTimeout 单台设备读取超时
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Monitor.TimeoutMillis) * time.Millisecond
}

// DedupWindow 报警去重窗口
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Alert.DedupWindowMinutes) * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
