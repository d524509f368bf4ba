package scheduler

import (
	"context"
	"time"

	"coldstore-monitor/internal/config"
	"coldstore-monitor/internal/device"
	"coldstore-monitor/internal/evaluator"
	"coldstore-monitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FreezerSource 调度所需的设备与阈值查询（FreezerRepository 实现）
type FreezerSource interface {
	GetActiveFreezers(ctx context.Context) ([]models.Freezer, error)
	ResolveActiveProfile(ctx context.Context, freezerID string, at time.Time) (*models.ThresholdProfile, error)
}

// ReadingSink 读数写入（ReadingsRepository 实现）
type ReadingSink interface {
	CreateReading(ctx context.Context, reading *models.Reading) error
}

// AlertHandler 报警生命周期入口（lifecycle.Manager 实现）
type AlertHandler interface {
	HandleViolation(ctx context.Context, violation models.Violation) (*models.Alert, error)
	HandleNormal(ctx context.Context, freezerID string, alertType models.AlertType) error
}

// Scheduler 轮询调度器
// 按固定间隔轮询所有在役冷库：读取采样、阈值评估、写入读数、
// 把越界交给生命周期管理器。单台设备的失败不影响本轮其余设备
type Scheduler struct {
	config   *config.Config
	freezers FreezerSource
	readings ReadingSink
	reader   device.DeviceReader
	alerts   AlertHandler
	logger   *zap.Logger
}

// NewScheduler 创建轮询调度器
func NewScheduler(
	cfg *config.Config,
	freezers FreezerSource,
	readings ReadingSink,
	reader device.DeviceReader,
	alerts AlertHandler,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		config:   cfg,
		freezers: freezers,
		readings: readings,
		reader:   reader,
		alerts:   alerts,
		logger:   logger,
	}
}

// Run 运行轮询循环，阻塞直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) {
	if !s.config.Monitor.Enabled {
		s.logger.Info("Monitor disabled, scheduler will not run")
		return
	}

	s.logger.Info("Scheduler starting",
		zap.Duration("poll_interval", s.config.Monitor.PollInterval),
		zap.Duration("initial_delay", s.config.Monitor.InitialDelay),
	)

	if s.config.Monitor.InitialDelay > 0 {
		select {
		case <-time.After(s.config.Monitor.InitialDelay):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(s.config.Monitor.PollInterval)
	defer ticker.Stop()

	s.PollAll(ctx)

	for {
		select {
		case <-ticker.C:
			s.PollAll(ctx)
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

// PollAll 执行一轮全量轮询
func (s *Scheduler) PollAll(ctx context.Context) {
	freezers, err := s.freezers.GetActiveFreezers(ctx)
	if err != nil {
		s.logger.Error("Failed to load active freezers", zap.Error(err))
		return
	}

	for i := range freezers {
		if ctx.Err() != nil {
			return
		}
		s.pollOne(ctx, &freezers[i])
	}
}

// pollOne 轮询单台设备，panic 不逃逸到整轮
func (s *Scheduler) pollOne(ctx context.Context, freezer *models.Freezer) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while polling freezer",
				zap.String("freezer_id", freezer.FreezerID),
				zap.Any("panic", r),
			)
		}
	}()

	sample, err := s.reader.Read(ctx, freezer)
	now := time.Now()

	if err != nil {
		s.recordFailedReading(ctx, freezer, now, err)
		return
	}

	profile, err := s.resolveProfile(ctx, freezer)
	if err != nil {
		s.logger.Error("Failed to resolve threshold profile",
			zap.String("freezer_id", freezer.FreezerID),
			zap.Error(err),
		)
		return
	}

	reading := &models.Reading{
		ReadingID:   uuid.New().String(),
		FreezerID:   freezer.FreezerID,
		RecordedAt:  sample.RecordedTime(),
		Temperature: sample.Temperature,
		Humidity:    sample.Humidity,
		Transport:   models.TransportOK,
		CreatedAt:   now,
	}

	status, violations := evaluator.Evaluate(reading, profile)
	reading.Status = status

	if err := s.readings.CreateReading(ctx, reading); err != nil {
		s.logger.Error("Failed to persist reading",
			zap.String("freezer_id", freezer.FreezerID),
			zap.Error(err),
		)
		// 读数落库失败不吞掉越界
	}

	if len(violations) == 0 {
		// 未测湿度的读数不给湿度报警积累自动解除计数
		normalTypes := []models.AlertType{models.AlertTypeFreezerTemperature}
		if reading.Humidity != nil {
			normalTypes = append(normalTypes, models.AlertTypeFreezerHumidity)
		}
		for _, alertType := range normalTypes {
			if err := s.alerts.HandleNormal(ctx, freezer.FreezerID, alertType); err != nil {
				s.logger.Error("Failed to handle normal reading",
					zap.String("freezer_id", freezer.FreezerID),
					zap.Error(err),
				)
			}
		}
		return
	}

	violatedMetrics := make(map[models.Metric]bool, len(violations))
	for _, violation := range violations {
		violatedMetrics[violation.Metric] = true
		if _, err := s.alerts.HandleViolation(ctx, violation); err != nil {
			s.logger.Error("Failed to handle violation",
				zap.String("freezer_id", freezer.FreezerID),
				zap.String("kind", string(violation.Kind)),
				zap.Error(err),
			)
		}
	}

	// 只越界一个量纲时，另一个量纲按正常读数处理
	if !violatedMetrics[models.MetricTemperature] {
		_ = s.alerts.HandleNormal(ctx, freezer.FreezerID, models.AlertTypeFreezerTemperature)
	}
	if reading.Humidity != nil && !violatedMetrics[models.MetricHumidity] {
		_ = s.alerts.HandleNormal(ctx, freezer.FreezerID, models.AlertTypeFreezerHumidity)
	}
}

// resolveProfile 解析设备的有效阈值配置（档案优先，简易阈值回退）
func (s *Scheduler) resolveProfile(ctx context.Context, freezer *models.Freezer) (*models.ThresholdProfile, error) {
	assigned, err := s.freezers.ResolveActiveProfile(ctx, freezer.FreezerID, time.Now())
	if err != nil {
		return nil, err
	}
	return evaluator.ResolveProfile(freezer, assigned)
}

// recordFailedReading 把传输失败记录为 CRITICAL 读数，不产生阈值越界
func (s *Scheduler) recordFailedReading(ctx context.Context, freezer *models.Freezer, at time.Time, readErr error) {
	transport := device.TransportStatusFor(readErr)
	message := readErr.Error()

	s.logger.Warn("Device read failed",
		zap.String("freezer_id", freezer.FreezerID),
		zap.String("transport", string(transport)),
		zap.Error(readErr),
	)

	reading := &models.Reading{
		ReadingID:    uuid.New().String(),
		FreezerID:    freezer.FreezerID,
		RecordedAt:   at,
		Status:       models.ReadingCritical,
		Transport:    transport,
		ErrorMessage: &message,
		CreatedAt:    at,
	}

	if err := s.readings.CreateReading(ctx, reading); err != nil {
		s.logger.Error("Failed to persist failed reading",
			zap.String("freezer_id", freezer.FreezerID),
			zap.Error(err),
		)
	}
}
