package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"coldstore-monitor/internal/config"
	"coldstore-monitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertStore 报警存储能力（报警状态的唯一事实来源）
type AlertStore interface {
	FindOpenAlert(ctx context.Context, entityType, entityID string, alertType models.AlertType) (*models.Alert, error)
	FindByID(ctx context.Context, alertID string) (*models.Alert, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
	UpdateAlert(ctx context.Context, alertID string, updates map[string]interface{}) error
}

// Manager 报警生命周期管理器
// 按去重键 (entity_type, entity_id, alert_type) 维护状态机：
// 首次越界创建报警，重复越界递增计数，确认/解除只允许前向流转。
// "查找活跃报警 → 创建或更新" 在键级互斥段内执行，
// 同键并发越界不会创建两条活跃报警；不同键之间无锁竞争。
type Manager struct {
	config    *config.Config
	store     AlertStore
	state     *StateManager
	publisher Publisher
	logger    *zap.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewManager 创建生命周期管理器
// state 仅在启用自动解除时需要，可为 nil
func NewManager(
	cfg *config.Config,
	store AlertStore,
	state *StateManager,
	publisher Publisher,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		config:    cfg,
		store:     store,
		state:     state,
		publisher: publisher,
		logger:    logger,
		keyLocks:  make(map[string]*sync.Mutex),
	}
}

// lockKey 获取去重键的互斥锁，返回解锁函数
func (m *Manager) lockKey(entityType, entityID string, alertType models.AlertType) func() {
	key := fmt.Sprintf("%s:%s:%s", entityType, entityID, alertType)

	m.mu.Lock()
	lock, ok := m.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.keyLocks[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// HandleViolation 处理一次阈值越界
// 无活跃报警时创建新报警并发布 AlertCreated；
// 去重窗口内已有活跃报警时递增计数（不重复通知）；
// 窗口外的旧活跃报警以 "superseded" 解除后再开新报警
func (m *Manager) HandleViolation(ctx context.Context, violation models.Violation) (*models.Alert, error) {
	m.publisher.Publish(ThresholdViolated{
		FreezerID:      violation.FreezerID,
		Value:          violation.Value,
		ThresholdValue: violation.ThresholdValue,
		Kind:           violation.Kind,
		Metric:         violation.Metric,
		ReadingID:      violation.ReadingID,
		DetectedAt:     violation.DetectedAt,
	})

	alertType := violation.Metric.AlertType()

	unlock := m.lockKey(models.EntityTypeFreezer, violation.FreezerID, alertType)
	defer unlock()

	// 越界中断连续正常计数
	if m.state != nil {
		if err := m.state.ResetNormalStreak(ctx, models.EntityTypeFreezer, violation.FreezerID, string(alertType)); err != nil {
			m.logger.Warn("Failed to reset normal streak",
				zap.String("freezer_id", violation.FreezerID),
				zap.Error(err),
			)
		}
	}

	existing, err := m.store.FindOpenAlert(ctx, models.EntityTypeFreezer, violation.FreezerID, alertType)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if time.Since(existing.LastActivity()) <= m.config.DedupWindow() {
			return m.absorbDuplicate(ctx, existing, violation)
		}

		// 活跃报警已超出去重窗口：判定为旧的事件残留，解除后重新开始
		if err := m.resolveLocked(ctx, existing, "system", "superseded by new violation", "superseded"); err != nil {
			return nil, err
		}
	}

	return m.createAlert(ctx, violation, alertType)
}

// absorbDuplicate 已有活跃报警吸收重复越界
// 越界类型变化（如 CRITICAL_HIGH → CRITICAL_LOW）视为同一事件的延续，
// 更新级别与描述，但不开第二条报警
func (m *Manager) absorbDuplicate(ctx context.Context, alert *models.Alert, violation models.Violation) (*models.Alert, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"duplicate_count":     alert.DuplicateCount + 1,
		"last_duplicate_time": now,
	}

	var prevContext models.AlertContext
	kindChanged := false
	if len(alert.ContextData) > 0 {
		if err := json.Unmarshal(alert.ContextData, &prevContext); err == nil {
			kindChanged = prevContext.ThresholdKind != "" && prevContext.ThresholdKind != violation.Kind
		}
	}

	if kindChanged {
		contextJSON, err := json.Marshal(contextFor(violation))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal alert context: %w", err)
		}
		updates["severity"] = violation.Kind.Severity()
		updates["message"] = violationMessage(violation)
		updates["context_data"] = contextJSON

		alert.Severity = violation.Kind.Severity()
		alert.Message = violationMessage(violation)
		alert.ContextData = contextJSON
	}

	if err := m.store.UpdateAlert(ctx, alert.ID, updates); err != nil {
		return nil, err
	}

	alert.DuplicateCount++
	alert.LastDuplicateTime = &now

	m.publisher.Publish(AlertDuplicate{
		Alert:          alert,
		DuplicateCount: alert.DuplicateCount,
		At:             now,
	})

	m.logger.Debug("Violation absorbed by existing alert",
		zap.String("alert_id", alert.ID),
		zap.Int("duplicate_count", alert.DuplicateCount),
		zap.Bool("kind_changed", kindChanged),
	)

	return alert, nil
}

// createAlert 创建新报警
func (m *Manager) createAlert(ctx context.Context, violation models.Violation, alertType models.AlertType) (*models.Alert, error) {
	contextJSON, err := json.Marshal(contextFor(violation))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert context: %w", err)
	}

	now := time.Now()
	alert := &models.Alert{
		ID:             uuid.New().String(),
		AlertType:      alertType,
		EntityType:     models.EntityTypeFreezer,
		EntityID:       violation.FreezerID,
		Severity:       violation.Kind.Severity(),
		Status:         models.AlertStatusOpen,
		StartTime:      violation.DetectedAt,
		Message:        violationMessage(violation),
		ContextData:    contextJSON,
		DuplicateCount: 0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}

	m.publisher.Publish(AlertCreated{
		Alert:     alert,
		CreatedAt: now,
	})

	m.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("freezer_id", violation.FreezerID),
		zap.String("kind", string(violation.Kind)),
		zap.String("severity", string(alert.Severity)),
	)

	return alert, nil
}

// HandleNormal 处理一次正常读数
// 自动解除未启用时保持报警打开，等待人工处理（显式配置，默认关闭）；
// 启用时连续 N 次正常读数后以 "auto-cleared" 解除
func (m *Manager) HandleNormal(ctx context.Context, freezerID string, alertType models.AlertType) error {
	if !m.config.Alert.AutoResolve {
		return nil
	}
	if m.state == nil {
		m.logger.Warn("Auto-resolve enabled but no state manager configured",
			zap.String("freezer_id", freezerID),
		)
		return nil
	}

	unlock := m.lockKey(models.EntityTypeFreezer, freezerID, alertType)
	defer unlock()

	existing, err := m.store.FindOpenAlert(ctx, models.EntityTypeFreezer, freezerID, alertType)
	if err != nil {
		return err
	}

	if existing == nil {
		if m.state != nil {
			_ = m.state.ResetNormalStreak(ctx, models.EntityTypeFreezer, freezerID, string(alertType))
		}
		return nil
	}

	streak, err := m.state.IncrNormalStreak(ctx, models.EntityTypeFreezer, freezerID, string(alertType))
	if err != nil {
		return err
	}

	if streak < m.config.Alert.AutoResolveAfter {
		return nil
	}

	if err := m.resolveLocked(ctx, existing, "system", "auto-cleared", "auto-cleared"); err != nil {
		return err
	}

	if err := m.state.ResetNormalStreak(ctx, models.EntityTypeFreezer, freezerID, string(alertType)); err != nil {
		m.logger.Warn("Failed to reset normal streak after auto-resolve",
			zap.String("freezer_id", freezerID),
			zap.Error(err),
		)
	}

	m.logger.Info("Alert auto-resolved after sustained normal readings",
		zap.String("alert_id", existing.ID),
		zap.String("freezer_id", freezerID),
		zap.Int("streak", streak),
	)

	return nil
}

// Acknowledge 确认报警（仅允许 OPEN → ACKNOWLEDGED）
func (m *Manager) Acknowledge(ctx context.Context, alertID, userID, notes string) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	// 第一次读取只为拿到去重键，状态必须在键锁内重新读取后校验，
	// 否则并发的 Resolve 会让状态逆向流转
	keyed, err := m.findAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	unlock := m.lockKey(keyed.EntityType, keyed.EntityID, keyed.AlertType)
	defer unlock()

	alert, err := m.findAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if alert.Status != models.AlertStatusOpen {
		return nil, fmt.Errorf("%w: cannot acknowledge alert %s in status %s", models.ErrInvalidState, alertID, alert.Status)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.AlertStatusAcknowledged,
		"acknowledged_at": now,
		"acknowledged_by": userID,
	}

	if err := m.store.UpdateAlert(ctx, alertID, updates); err != nil {
		return nil, err
	}

	alert.Status = models.AlertStatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = &userID

	m.publisher.Publish(AlertAcknowledged{
		Alert:          alert,
		UserID:         userID,
		Notes:          notes,
		AcknowledgedAt: now,
	})

	m.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID),
	)

	return alert, nil
}

// Resolve 解除报警（允许 OPEN 或 ACKNOWLEDGED → RESOLVED）
func (m *Manager) Resolve(ctx context.Context, alertID, userID, notes string) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	// 与 Acknowledge 同理：键锁内重新读取再校验状态
	keyed, err := m.findAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	unlock := m.lockKey(keyed.EntityType, keyed.EntityID, keyed.AlertType)
	defer unlock()

	alert, err := m.findAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !alert.IsActive() {
		return nil, fmt.Errorf("%w: cannot resolve alert %s in status %s", models.ErrInvalidState, alertID, alert.Status)
	}

	if err := m.resolveLocked(ctx, alert, userID, notes, ""); err != nil {
		return nil, err
	}

	m.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID),
	)

	return alert, nil
}

// resolveLocked 在键锁内执行解除流转
// resolution 非空时记录到上下文（auto-cleared / superseded）
func (m *Manager) resolveLocked(ctx context.Context, alert *models.Alert, userID, notes, resolution string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":           models.AlertStatusResolved,
		"end_time":         now,
		"resolved_at":      now,
		"resolved_by":      userID,
		"resolution_notes": notes,
	}

	if resolution != "" {
		var alertContext models.AlertContext
		if len(alert.ContextData) > 0 {
			_ = json.Unmarshal(alert.ContextData, &alertContext)
		}
		alertContext.Resolution = resolution
		if contextJSON, err := json.Marshal(alertContext); err == nil {
			updates["context_data"] = contextJSON
			alert.ContextData = contextJSON
		}
	}

	if err := m.store.UpdateAlert(ctx, alert.ID, updates); err != nil {
		return err
	}

	alert.Status = models.AlertStatusResolved
	alert.EndTime = &now
	alert.ResolvedAt = &now
	alert.ResolvedBy = &userID
	alert.ResolutionNotes = &notes

	m.publisher.Publish(AlertResolved{
		Alert:      alert,
		UserID:     userID,
		Notes:      notes,
		ResolvedAt: now,
	})

	return nil
}

// findAlert 读取报警，不存在时归为 ErrInvalidState（对操作方等同于已关闭）
func (m *Manager) findAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	alert, err := m.store.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: alert %s does not exist", models.ErrInvalidState, alertID)
		}
		return nil, err
	}
	return alert, nil
}

func contextFor(violation models.Violation) models.AlertContext {
	return models.AlertContext{
		Value:          violation.Value,
		ThresholdValue: violation.ThresholdValue,
		ThresholdKind:  violation.Kind,
		Metric:         violation.Metric,
		ReadingID:      violation.ReadingID,
	}
}

func violationMessage(violation models.Violation) string {
	return fmt.Sprintf("Freezer %s %s %.2f violated %s threshold %.2f",
		violation.FreezerID,
		violation.Metric,
		violation.Value,
		violation.Kind,
		violation.ThresholdValue,
	)
}
