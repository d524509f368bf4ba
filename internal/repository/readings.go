package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coldstore-monitor/internal/models"

	"go.uber.org/zap"
)

// ReadingsRepository 冷库读数仓库
// 读数写入后不再修改，供报表服务按天/周/月聚合
type ReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingsRepository 创建读数仓库
func NewReadingsRepository(db *sql.DB, logger *zap.Logger) *ReadingsRepository {
	return &ReadingsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateReading 写入一条读数
func (r *ReadingsRepository) CreateReading(ctx context.Context, reading *models.Reading) error {
	if reading == nil {
		return fmt.Errorf("reading is required")
	}
	if reading.FreezerID == "" {
		return fmt.Errorf("freezer_id is required")
	}

	query := `
		INSERT INTO freezer_readings (
			reading_id,
			freezer_id,
			recorded_at,
			temperature,
			humidity,
			status,
			transport,
			error_message,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		reading.ReadingID,
		reading.FreezerID,
		reading.RecordedAt,
		reading.Temperature,
		reading.Humidity,
		reading.Status,
		reading.Transport,
		reading.ErrorMessage,
		reading.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("%w: failed to create reading: %v", models.ErrPersistence, err)
	}

	return nil
}

// GetRecentReadings 获取某台设备最近的读数（按时间倒序）
func (r *ReadingsRepository) GetRecentReadings(ctx context.Context, freezerID string, since time.Time, limit int) ([]models.Reading, error) {
	if freezerID == "" {
		return nil, fmt.Errorf("freezer_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			reading_id,
			freezer_id,
			recorded_at,
			temperature,
			humidity,
			status,
			transport,
			error_message,
			created_at
		FROM freezer_readings
		WHERE freezer_id = $1
		  AND recorded_at >= $2
		ORDER BY recorded_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, freezerID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var reading models.Reading
		var humidity sql.NullFloat64
		var errorMessage sql.NullString

		err := rows.Scan(
			&reading.ReadingID,
			&reading.FreezerID,
			&reading.RecordedAt,
			&reading.Temperature,
			&humidity,
			&reading.Status,
			&reading.Transport,
			&errorMessage,
			&reading.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		if humidity.Valid {
			reading.Humidity = &humidity.Float64
		}
		if errorMessage.Valid {
			reading.ErrorMessage = &errorMessage.String
		}

		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return readings, nil
}
