package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coldstore-monitor/internal/models"

	"go.uber.org/zap"
)

// FreezerRepository 冷库设备仓库（设备清单 + 阈值档案解析）
type FreezerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFreezerRepository 创建冷库设备仓库
func NewFreezerRepository(db *sql.DB, logger *zap.Logger) *FreezerRepository {
	return &FreezerRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveFreezers 获取所有启用监控的冷库设备
func (r *FreezerRepository) GetActiveFreezers(ctx context.Context) ([]models.Freezer, error) {
	query := `
		SELECT
			freezer_id,
			name,
			location,
			device_address,
			target_temperature,
			warning_threshold,
			critical_threshold,
			active
		FROM freezers
		WHERE active = TRUE
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query active freezers: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var freezers []models.Freezer
	for rows.Next() {
		var f models.Freezer
		var target, warning, critical sql.NullFloat64

		err := rows.Scan(
			&f.FreezerID,
			&f.Name,
			&f.Location,
			&f.DeviceAddress,
			&target,
			&warning,
			&critical,
			&f.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan freezer: %w", err)
		}

		if target.Valid {
			f.TargetTemperature = &target.Float64
		}
		if warning.Valid {
			f.WarningThreshold = &warning.Float64
		}
		if critical.Valid {
			f.CriticalThreshold = &critical.Float64
		}

		freezers = append(freezers, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate freezers: %w", err)
	}

	return freezers, nil
}

// GetFreezer 根据 freezer_id 获取单台设备
func (r *FreezerRepository) GetFreezer(ctx context.Context, freezerID string) (*models.Freezer, error) {
	if freezerID == "" {
		return nil, fmt.Errorf("freezer_id is required")
	}

	query := `
		SELECT
			freezer_id,
			name,
			location,
			device_address,
			target_temperature,
			warning_threshold,
			critical_threshold,
			active
		FROM freezers
		WHERE freezer_id = $1
	`

	var f models.Freezer
	var target, warning, critical sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, freezerID).Scan(
		&f.FreezerID,
		&f.Name,
		&f.Location,
		&f.DeviceAddress,
		&target,
		&warning,
		&critical,
		&f.Active,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: freezer %s", models.ErrNotFound, freezerID)
		}
		return nil, fmt.Errorf("failed to query freezer: %w", err)
	}

	if target.Valid {
		f.TargetTemperature = &target.Float64
	}
	if warning.Valid {
		f.WarningThreshold = &warning.Float64
	}
	if critical.Valid {
		f.CriticalThreshold = &critical.Float64
	}

	return &f, nil
}

// ResolveActiveProfile 解析设备在指定时刻生效的阈值档案
// 多条生效分配时取 effective_start 最新的一条；无分配时返回 nil（调用方回退到简易阈值）
func (r *FreezerRepository) ResolveActiveProfile(ctx context.Context, freezerID string, at time.Time) (*models.ThresholdProfile, error) {
	if freezerID == "" {
		return nil, fmt.Errorf("freezer_id is required")
	}

	query := `
		SELECT
			p.profile_id,
			p.name,
			p.critical_max,
			p.warning_max,
			p.warning_min,
			p.critical_min,
			p.humidity_critical_max,
			p.humidity_warning_max,
			p.humidity_warning_min,
			p.humidity_critical_min
		FROM freezer_threshold_profiles ftp
		JOIN threshold_profiles p ON ftp.profile_id = p.profile_id
		WHERE ftp.freezer_id = $1
		  AND ftp.effective_start <= $2
		  AND (ftp.effective_end IS NULL OR ftp.effective_end > $2)
		ORDER BY ftp.effective_start DESC
		LIMIT 1
	`

	var p models.ThresholdProfile
	var cMax, wMax, wMin, cMin sql.NullFloat64
	var hcMax, hwMax, hwMin, hcMin sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, freezerID, at).Scan(
		&p.ProfileID,
		&p.Name,
		&cMax,
		&wMax,
		&wMin,
		&cMin,
		&hcMax,
		&hwMax,
		&hwMin,
		&hcMin,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 无生效分配
		}
		return nil, fmt.Errorf("failed to resolve threshold profile: %w", err)
	}

	if cMax.Valid {
		p.CriticalMax = &cMax.Float64
	}
	if wMax.Valid {
		p.WarningMax = &wMax.Float64
	}
	if wMin.Valid {
		p.WarningMin = &wMin.Float64
	}
	if cMin.Valid {
		p.CriticalMin = &cMin.Float64
	}
	if hcMax.Valid {
		p.HumidityCriticalMax = &hcMax.Float64
	}
	if hwMax.Valid {
		p.HumidityWarningMax = &hwMax.Float64
	}
	if hwMin.Valid {
		p.HumidityWarningMin = &hwMin.Float64
	}
	if hcMin.Valid {
		p.HumidityCriticalMin = &hcMin.Float64
	}

	return &p, nil
}
