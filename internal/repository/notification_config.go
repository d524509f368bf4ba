package repository

import (
	"context"
	"database/sql"
	"fmt"

	"coldstore-monitor/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotificationConfigRepository 通知配置仓库（对本服务只读）
type NotificationConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationConfigRepository 创建通知配置仓库
func NewNotificationConfigRepository(db *sql.DB, logger *zap.Logger) *NotificationConfigRepository {
	return &NotificationConfigRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveByNature 获取某通知类别下所有启用的配置项
func (r *NotificationConfigRepository) GetActiveByNature(ctx context.Context, nature models.NotificationNature) ([]models.NotificationConfigOption, error) {
	if nature == "" {
		return nil, fmt.Errorf("nature is required")
	}

	query := `
		SELECT
			id,
			nature,
			method,
			active,
			recipient,
			additional_contacts
		FROM notification_config_options
		WHERE nature = $1
		  AND active = TRUE
	`

	rows, err := r.db.QueryContext(ctx, query, nature)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification config: %w", err)
	}
	defer rows.Close()

	var options []models.NotificationConfigOption
	for rows.Next() {
		var opt models.NotificationConfigOption
		var contacts pq.StringArray

		err := rows.Scan(
			&opt.ID,
			&opt.Nature,
			&opt.Method,
			&opt.Active,
			&opt.Recipient,
			&contacts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification config: %w", err)
		}

		opt.AdditionalContacts = []string(contacts)
		options = append(options, opt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification config: %w", err)
	}

	return options, nil
}
