package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coldstore-monitor/internal/models"

	"go.uber.org/zap"
)

// AlertsRepository 报警仓库（报警状态的唯一事实来源）
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建报警仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertFilters 报警查询过滤条件
type AlertFilters struct {
	StartTime *time.Time // start_time >= StartTime
	EndTime   *time.Time // start_time <= EndTime

	EntityType *string
	EntityID   *string

	AlertType  *models.AlertType
	Severity   *models.AlertSeverity
	Status     *models.AlertStatus
	Statuses   []models.AlertStatus // IN 查询
}

const alertColumns = `
	id,
	alert_type,
	entity_type,
	entity_id,
	severity,
	status,
	start_time,
	end_time,
	message,
	context_data,
	acknowledged_at,
	acknowledged_by,
	resolved_at,
	resolved_by,
	resolution_notes,
	duplicate_count,
	last_duplicate_time,
	created_at,
	updated_at`

// scanAlert 扫描一行报警记录，统一处理可空字段与 JSONB
func scanAlert(scan func(dest ...interface{}) error) (*models.Alert, error) {
	var alert models.Alert
	var endTime, acknowledgedAt, resolvedAt, lastDuplicateTime sql.NullTime
	var acknowledgedBy, resolvedBy, resolutionNotes sql.NullString
	var contextData []byte

	err := scan(
		&alert.ID,
		&alert.AlertType,
		&alert.EntityType,
		&alert.EntityID,
		&alert.Severity,
		&alert.Status,
		&alert.StartTime,
		&endTime,
		&alert.Message,
		&contextData,
		&acknowledgedAt,
		&acknowledgedBy,
		&resolvedAt,
		&resolvedBy,
		&resolutionNotes,
		&alert.DuplicateCount,
		&lastDuplicateTime,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		alert.EndTime = &endTime.Time
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = &acknowledgedBy.String
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		alert.ResolvedBy = &resolvedBy.String
	}
	if resolutionNotes.Valid {
		alert.ResolutionNotes = &resolutionNotes.String
	}
	if len(contextData) > 0 {
		alert.ContextData = contextData
	} else {
		alert.ContextData = json.RawMessage("{}")
	}

	return &alert, nil
}

// FindOpenAlert 按去重键查找活跃报警（OPEN 或 ACKNOWLEDGED）
// 去重键为 (entity_type, entity_id, alert_type)，活跃报警同时最多一条
func (r *AlertsRepository) FindOpenAlert(ctx context.Context, entityType, entityID string, alertType models.AlertType) (*models.Alert, error) {
	if entityType == "" {
		return nil, fmt.Errorf("entity_type is required")
	}
	if entityID == "" {
		return nil, fmt.Errorf("entity_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE entity_type = $1
		  AND entity_id = $2
		  AND alert_type = $3
		  AND status IN ('OPEN', 'ACKNOWLEDGED')
		ORDER BY start_time DESC
		LIMIT 1
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, entityType, entityID, alertType).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 无活跃报警
		}
		return nil, fmt.Errorf("%w: failed to query open alert: %v", models.ErrPersistence, err)
	}

	return alert, nil
}

// FindByID 根据 id 获取报警
func (r *AlertsRepository) FindByID(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE id = $1
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: alert %s", models.ErrNotFound, alertID)
		}
		return nil, fmt.Errorf("%w: failed to query alert: %v", models.ErrPersistence, err)
	}

	return alert, nil
}

// CreateAlert 创建报警
func (r *AlertsRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.EntityType == "" || alert.EntityID == "" {
		return fmt.Errorf("entity_type and entity_id are required")
	}

	query := `
		INSERT INTO alerts (
			id,
			alert_type,
			entity_type,
			entity_id,
			severity,
			status,
			start_time,
			end_time,
			message,
			context_data,
			acknowledged_at,
			acknowledged_by,
			resolved_at,
			resolved_by,
			resolution_notes,
			duplicate_count,
			last_duplicate_time,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.AlertType,
		alert.EntityType,
		alert.EntityID,
		alert.Severity,
		alert.Status,
		alert.StartTime,
		alert.EndTime,
		alert.Message,
		alert.ContextData,
		alert.AcknowledgedAt,
		alert.AcknowledgedBy,
		alert.ResolvedAt,
		alert.ResolvedBy,
		alert.ResolutionNotes,
		alert.DuplicateCount,
		alert.LastDuplicateTime,
		alert.CreatedAt,
		alert.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("%w: failed to create alert: %v", models.ErrPersistence, err)
	}

	return nil
}

// UpdateAlert 更新报警（部分更新）
// updates 是一个 map，包含要更新的字段
func (r *AlertsRepository) UpdateAlert(ctx context.Context, alertID string, updates map[string]interface{}) error {
	if alertID == "" {
		return fmt.Errorf("alert id is required")
	}
	if len(updates) == 0 {
		return fmt.Errorf("updates cannot be empty")
	}

	// 允许更新的字段
	allowedFields := map[string]bool{
		"severity":            true,
		"status":              true,
		"end_time":            true,
		"message":             true,
		"context_data":        true,
		"acknowledged_at":     true,
		"acknowledged_by":     true,
		"resolved_at":         true,
		"resolved_by":         true,
		"resolution_notes":    true,
		"duplicate_count":     true,
		"last_duplicate_time": true,
	}

	setParts := []string{}
	args := []interface{}{}
	argN := 1

	for field, value := range updates {
		if !allowedFields[field] {
			return fmt.Errorf("field '%s' is not allowed to update", field)
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}

	// 自动更新 updated_at
	setParts = append(setParts, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, alertID)
	query := fmt.Sprintf(`
		UPDATE alerts
		SET %s
		WHERE id = $%d
	`, strings.Join(setParts, ", "), argN)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update alert: %v", models.ErrPersistence, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert %s", models.ErrNotFound, alertID)
	}

	return nil
}

// buildWhereClause 构建 WHERE 子句（列表/统计查询共用）
func (r *AlertsRepository) buildWhereClause(filters AlertFilters, args *[]interface{}, argN *int) []string {
	where := []string{}

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("start_time >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("start_time <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}
	if filters.EntityType != nil {
		where = append(where, fmt.Sprintf("entity_type = $%d", *argN))
		*args = append(*args, *filters.EntityType)
		*argN++
	}
	if filters.EntityID != nil {
		where = append(where, fmt.Sprintf("entity_id = $%d", *argN))
		*args = append(*args, *filters.EntityID)
		*argN++
	}
	if filters.AlertType != nil {
		where = append(where, fmt.Sprintf("alert_type = $%d", *argN))
		*args = append(*args, *filters.AlertType)
		*argN++
	}
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", *argN))
		*args = append(*args, *filters.Severity)
		*argN++
	}
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", *argN))
		*args = append(*args, *filters.Status)
		*argN++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Statuses[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	return where
}

// ListAlerts 列表查询（支持多条件过滤、分页）
func (r *AlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters, page, size int) ([]*models.Alert, int, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM alerts
		%s
	`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		%s
		ORDER BY start_time DESC
		LIMIT $%d OFFSET $%d
	`, alertColumns, whereClause, argN, argN+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, total, nil
}

// CountActiveAlerts 统计某实体的活跃报警数量
func (r *AlertsRepository) CountActiveAlerts(ctx context.Context, entityType, entityID string) (int, error) {
	if entityType == "" || entityID == "" {
		return 0, fmt.Errorf("entity_type and entity_id are required")
	}

	query := `
		SELECT COUNT(*)
		FROM alerts
		WHERE entity_type = $1
		  AND entity_id = $2
		  AND status IN ('OPEN', 'ACKNOWLEDGED')
	`

	var total int
	if err := r.db.QueryRowContext(ctx, query, entityType, entityID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}

	return total, nil
}
