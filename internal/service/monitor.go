package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"coldstore-monitor/internal/config"
	"coldstore-monitor/internal/device"
	"coldstore-monitor/internal/ingest"
	"coldstore-monitor/internal/lifecycle"
	"coldstore-monitor/internal/notifier"
	"coldstore-monitor/internal/repository"
	"coldstore-monitor/internal/scheduler"
	"coldstore-monitor/pkg/database"
	"coldstore-monitor/pkg/mqtt"
	pkgredis "coldstore-monitor/pkg/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MonitorService 冷库监控服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	freezerRepo   *repository.FreezerRepository
	readingsRepo  *repository.ReadingsRepository
	alertsRepo    *repository.AlertsRepository
	notifyRepo    *repository.NotificationConfigRepository
	bus           *lifecycle.ChannelBus
	stateManager  *lifecycle.StateManager
	alertManager  *lifecycle.Manager
	telemetry     *ingest.Consumer
	pollScheduler *scheduler.Scheduler
	dispatcher    *notifier.Dispatcher

	wg sync.WaitGroup
}

// NewMonitorService 创建监控服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := pkgredis.NewRedisClient(&cfg.Redis)
	if err := pkgredis.Ping(context.Background(), redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		pkgredis.Close(redisClient)
		database.Close(db)
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	// 4. Repository 层
	freezerRepo := repository.NewFreezerRepository(db, logger)
	readingsRepo := repository.NewReadingsRepository(db, logger)
	alertsRepo := repository.NewAlertsRepository(db, logger)
	notifyRepo := repository.NewNotificationConfigRepository(db, logger)

	// 5. 生命周期层
	bus := lifecycle.NewChannelBus(256, logger)
	stateManager := lifecycle.NewStateManager(cfg, redisClient, logger)
	alertManager := lifecycle.NewManager(cfg, alertsRepo, stateManager, bus, logger)

	// 6. 接入与调度层
	telemetry := ingest.NewConsumer(cfg, mqttClient, redisClient, logger)

	var reader device.DeviceReader = device.NewCacheReader(cfg, redisClient, logger)
	reader = device.NewRetryReader(reader, cfg.Monitor.Retries, cfg.ReadTimeout(), logger)

	pollScheduler := scheduler.NewScheduler(cfg, freezerRepo, readingsRepo, reader, alertManager, logger)

	// 7. 通知派发层
	dispatcher := notifier.NewDispatcher(cfg, notifyRepo, redisClient, logger)

	return &MonitorService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		logger:        logger,
		freezerRepo:   freezerRepo,
		readingsRepo:  readingsRepo,
		alertsRepo:    alertsRepo,
		notifyRepo:    notifyRepo,
		bus:           bus,
		stateManager:  stateManager,
		alertManager:  alertManager,
		telemetry:     telemetry,
		pollScheduler: pollScheduler,
		dispatcher:    dispatcher,
	}, nil
}

// AlertManager 报警生命周期入口（供管理接口确认/解除报警）
func (s *MonitorService) AlertManager() *lifecycle.Manager {
	return s.alertManager
}

// Alerts 报警查询入口
func (s *MonitorService) Alerts() *repository.AlertsRepository {
	return s.alertsRepo
}

// Start 启动服务
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting coldstore monitor service")

	// 先起派发器，再放事件进总线
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run(ctx, s.bus.Events())
	}()

	if err := s.telemetry.Start(); err != nil {
		return fmt.Errorf("failed to start telemetry consumer: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollScheduler.Run(ctx)
	}()

	return nil
}

// Stop 停止服务（调用前应先取消 Start 的 ctx）
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping coldstore monitor service")

	s.telemetry.Stop()
	s.mqttClient.Disconnect()

	// 等调度器与派发器退出后再关总线和连接
	s.wg.Wait()
	s.bus.Close()

	if err := pkgredis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	return nil
}
