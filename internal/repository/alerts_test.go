package repository

import (
	"context"
	"testing"
	"time"

	"coldstore-monitor/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var alertColumnNames = []string{
	"id", "alert_type", "entity_type", "entity_id", "severity", "status",
	"start_time", "end_time", "message", "context_data",
	"acknowledged_at", "acknowledged_by", "resolved_at", "resolved_by", "resolution_notes",
	"duplicate_count", "last_duplicate_time", "created_at", "updated_at",
}

func alertRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(alertColumnNames).AddRow(
		"alert-1", "FREEZER_TEMPERATURE", "Freezer", "freezer-1", "CRITICAL", "OPEN",
		now, nil, "Freezer freezer-1 temperature 9.00 violated CRITICAL_HIGH threshold 8.00",
		[]byte(`{"value":9,"threshold_value":8,"threshold_kind":"CRITICAL_HIGH","metric":"temperature","reading_id":"reading-1"}`),
		nil, nil, nil, nil, nil,
		2, now, now, now,
	)
}

func TestFindOpenAlert_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE entity_type = \$1`).
		WithArgs("Freezer", "freezer-1", "FREEZER_TEMPERATURE").
		WillReturnRows(alertRow(now))

	repo := NewAlertsRepository(db, zap.NewNop())
	alert, err := repo.FindOpenAlert(context.Background(), "Freezer", "freezer-1", models.AlertTypeFreezerTemperature)

	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "alert-1", alert.ID)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)
	assert.Equal(t, 2, alert.DuplicateCount)
	require.NotNil(t, alert.LastDuplicateTime)
	assert.Nil(t, alert.EndTime)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpenAlert_NoneReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE entity_type = \$1`).
		WithArgs("Freezer", "freezer-1", "FREEZER_TEMPERATURE").
		WillReturnRows(sqlmock.NewRows(alertColumnNames))

	repo := NewAlertsRepository(db, zap.NewNop())
	alert, err := repo.FindOpenAlert(context.Background(), "Freezer", "freezer-1", models.AlertTypeFreezerTemperature)

	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpenAlert_RequiresEntity(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAlertsRepository(db, zap.NewNop())

	_, err = repo.FindOpenAlert(context.Background(), "", "freezer-1", models.AlertTypeFreezerTemperature)
	assert.Error(t, err)
	_, err = repo.FindOpenAlert(context.Background(), "Freezer", "", models.AlertTypeFreezerTemperature)
	assert.Error(t, err)
}

func TestFindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE id = \$1`).
		WithArgs("no-such-alert").
		WillReturnRows(sqlmock.NewRows(alertColumnNames))

	repo := NewAlertsRepository(db, zap.NewNop())
	_, err = repo.FindByID(context.Background(), "no-such-alert")

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	repo := NewAlertsRepository(db, zap.NewNop())
	err = repo.CreateAlert(context.Background(), &models.Alert{
		ID:          "alert-1",
		AlertType:   models.AlertTypeFreezerTemperature,
		EntityType:  "Freezer",
		EntityID:    "freezer-1",
		Severity:    models.SeverityCritical,
		Status:      models.AlertStatusOpen,
		StartTime:   now,
		Message:     "over threshold",
		ContextData: []byte(`{}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_RequiresEntity(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAlertsRepository(db, zap.NewNop())
	assert.Error(t, repo.CreateAlert(context.Background(), nil))
	assert.Error(t, repo.CreateAlert(context.Background(), &models.Alert{ID: "alert-1"}))
}

func TestUpdateAlert_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE alerts SET status = \$1, updated_at = CURRENT_TIMESTAMP WHERE id = \$2`).
		WithArgs("ACKNOWLEDGED", "alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAlertsRepository(db, zap.NewNop())
	err = repo.UpdateAlert(context.Background(), "alert-1", map[string]interface{}{
		"status": models.AlertStatusAcknowledged,
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlert_DisallowedField(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAlertsRepository(db, zap.NewNop())
	err = repo.UpdateAlert(context.Background(), "alert-1", map[string]interface{}{
		"entity_id": "freezer-2",
	})

	assert.Error(t, err)
}

func TestUpdateAlert_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE alerts SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAlertsRepository(db, zap.NewNop())
	err = repo.UpdateAlert(context.Background(), "no-such-alert", map[string]interface{}{
		"status": models.AlertStatusResolved,
	})

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlerts_WithFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	entityID := "freezer-1"
	status := models.AlertStatusOpen

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts WHERE entity_id = \$1 AND status = \$2`).
		WithArgs(entityID, status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE entity_id = \$1 AND status = \$2 ORDER BY start_time DESC`).
		WithArgs(entityID, status, 20, 0).
		WillReturnRows(alertRow(now))

	repo := NewAlertsRepository(db, zap.NewNop())
	alerts, total, err := repo.ListAlerts(context.Background(), AlertFilters{
		EntityID: &entityID,
		Status:   &status,
	}, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, "alert-1", alerts[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActiveAlerts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts WHERE entity_type = \$1`).
		WithArgs("Freezer", "freezer-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	repo := NewAlertsRepository(db, zap.NewNop())
	total, err := repo.CountActiveAlerts(context.Background(), "Freezer", "freezer-1")

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
