package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"coldstore-monitor/internal/config"
	"coldstore-monitor/internal/device"
	"coldstore-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func floatPtr(v float64) *float64 { return &v }

type fakeFreezerSource struct {
	freezers []models.Freezer
	profiles map[string]*models.ThresholdProfile
}

func (f *fakeFreezerSource) GetActiveFreezers(_ context.Context) ([]models.Freezer, error) {
	return f.freezers, nil
}

func (f *fakeFreezerSource) ResolveActiveProfile(_ context.Context, freezerID string, _ time.Time) (*models.ThresholdProfile, error) {
	return f.profiles[freezerID], nil
}

type fakeReadingSink struct {
	mu       sync.Mutex
	readings []*models.Reading
}

func (f *fakeReadingSink) CreateReading(_ context.Context, reading *models.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, reading)
	return nil
}

type fakeAlertHandler struct {
	mu         sync.Mutex
	violations []models.Violation
	normals    []string
}

func (f *fakeAlertHandler) HandleViolation(_ context.Context, violation models.Violation) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, violation)
	return &models.Alert{ID: "alert-1"}, nil
}

func (f *fakeAlertHandler) HandleNormal(_ context.Context, freezerID string, alertType models.AlertType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.normals = append(f.normals, freezerID+":"+string(alertType))
	return nil
}

// mapReader 按设备返回固定采样或错误
type mapReader struct {
	samples map[string]*models.Sample
	errs    map[string]error
}

func (r *mapReader) Read(_ context.Context, freezer *models.Freezer) (*models.Sample, error) {
	if err, ok := r.errs[freezer.FreezerID]; ok {
		return nil, err
	}
	if sample, ok := r.samples[freezer.FreezerID]; ok {
		return sample, nil
	}
	return nil, device.ErrNoSample
}

func schedulerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor.Enabled = true
	cfg.Monitor.PollInterval = time.Minute
	cfg.Monitor.TimeoutMillis = 1000
	return cfg
}

func coldProfile() *models.ThresholdProfile {
	return &models.ThresholdProfile{
		ProfileID:   "profile-1",
		CriticalMax: floatPtr(-15.0),
		WarningMax:  floatPtr(-17.0),
		WarningMin:  floatPtr(-23.0),
		CriticalMin: floatPtr(-25.0),
	}
}

func TestPollAll_NormalReading(t *testing.T) {
	freezers := &fakeFreezerSource{
		freezers: []models.Freezer{{FreezerID: "freezer-1", Active: true}},
		profiles: map[string]*models.ThresholdProfile{"freezer-1": coldProfile()},
	}
	readings := &fakeReadingSink{}
	alerts := &fakeAlertHandler{}
	reader := &mapReader{samples: map[string]*models.Sample{
		"freezer-1": {FreezerID: "freezer-1", Temperature: -20.0, Humidity: floatPtr(45.0), Timestamp: time.Now().Unix()},
	}}

	s := NewScheduler(schedulerConfig(), freezers, readings, reader, alerts, zap.NewNop())
	s.PollAll(context.Background())

	require.Len(t, readings.readings, 1)
	assert.Equal(t, models.ReadingNormal, readings.readings[0].Status)
	assert.Equal(t, models.TransportOK, readings.readings[0].Transport)
	assert.Empty(t, alerts.violations)
	// 两个量纲都走正常读数路径
	assert.Contains(t, alerts.normals, "freezer-1:FREEZER_TEMPERATURE")
	assert.Contains(t, alerts.normals, "freezer-1:FREEZER_HUMIDITY")
}

func TestPollAll_NoHumiditySampleSkipsHumidityNormal(t *testing.T) {
	freezers := &fakeFreezerSource{
		freezers: []models.Freezer{{FreezerID: "freezer-1", Active: true}},
		profiles: map[string]*models.ThresholdProfile{"freezer-1": coldProfile()},
	}
	readings := &fakeReadingSink{}
	alerts := &fakeAlertHandler{}
	reader := &mapReader{samples: map[string]*models.Sample{
		"freezer-1": {FreezerID: "freezer-1", Temperature: -20.0, Timestamp: time.Now().Unix()},
	}}

	s := NewScheduler(schedulerConfig(), freezers, readings, reader, alerts, zap.NewNop())
	s.PollAll(context.Background())

	// 未测湿度：湿度报警不积累自动解除计数
	assert.Contains(t, alerts.normals, "freezer-1:FREEZER_TEMPERATURE")
	assert.NotContains(t, alerts.normals, "freezer-1:FREEZER_HUMIDITY")
}

func TestPollAll_ViolationRaised(t *testing.T) {
	freezers := &fakeFreezerSource{
		freezers: []models.Freezer{{FreezerID: "freezer-1", Active: true}},
		profiles: map[string]*models.ThresholdProfile{"freezer-1": coldProfile()},
	}
	readings := &fakeReadingSink{}
	alerts := &fakeAlertHandler{}
	reader := &mapReader{samples: map[string]*models.Sample{
		"freezer-1": {FreezerID: "freezer-1", Temperature: -14.0, Humidity: floatPtr(45.0), Timestamp: time.Now().Unix()},
	}}

	s := NewScheduler(schedulerConfig(), freezers, readings, reader, alerts, zap.NewNop())
	s.PollAll(context.Background())

	require.Len(t, readings.readings, 1)
	assert.Equal(t, models.ReadingCritical, readings.readings[0].Status)

	require.Len(t, alerts.violations, 1)
	violation := alerts.violations[0]
	assert.Equal(t, models.ThresholdCriticalHigh, violation.Kind)
	assert.Equal(t, -14.0, violation.Value)
	assert.Equal(t, -15.0, violation.ThresholdValue)
	assert.Equal(t, readings.readings[0].ReadingID, violation.ReadingID)

	// 温度越界时湿度仍按正常处理
	assert.Contains(t, alerts.normals, "freezer-1:FREEZER_HUMIDITY")
	assert.NotContains(t, alerts.normals, "freezer-1:FREEZER_TEMPERATURE")
}

func TestPollAll_TransportFailureRecordedNotRaised(t *testing.T) {
	freezers := &fakeFreezerSource{
		freezers: []models.Freezer{{FreezerID: "freezer-1", Active: true}},
		profiles: map[string]*models.ThresholdProfile{"freezer-1": coldProfile()},
	}
	readings := &fakeReadingSink{}
	alerts := &fakeAlertHandler{}
	reader := &mapReader{errs: map[string]error{"freezer-1": device.ErrStaleSample}}

	s := NewScheduler(schedulerConfig(), freezers, readings, reader, alerts, zap.NewNop())
	s.PollAll(context.Background())

	require.Len(t, readings.readings, 1)
	failed := readings.readings[0]
	assert.Equal(t, models.ReadingCritical, failed.Status)
	assert.Equal(t, models.TransportTimeout, failed.Transport)
	require.NotNil(t, failed.ErrorMessage)

	// 传输失败绝不转成阈值越界
	assert.Empty(t, alerts.violations)
	assert.Empty(t, alerts.normals)
}

func TestPollAll_DeviceIsolation(t *testing.T) {
	freezers := &fakeFreezerSource{
		freezers: []models.Freezer{
			{FreezerID: "freezer-1", Active: true},
			{FreezerID: "freezer-2", Active: true},
		},
		profiles: map[string]*models.ThresholdProfile{
			"freezer-1": coldProfile(),
			"freezer-2": coldProfile(),
		},
	}
	readings := &fakeReadingSink{}
	alerts := &fakeAlertHandler{}
	reader := &mapReader{
		errs: map[string]error{"freezer-1": device.ErrNoSample},
		samples: map[string]*models.Sample{
			"freezer-2": {FreezerID: "freezer-2", Temperature: -20.0, Timestamp: time.Now().Unix()},
		},
	}

	s := NewScheduler(schedulerConfig(), freezers, readings, reader, alerts, zap.NewNop())
	s.PollAll(context.Background())

	// 第一台失败不影响第二台
	require.Len(t, readings.readings, 2)
	assert.Equal(t, "freezer-1", readings.readings[0].FreezerID)
	assert.Equal(t, models.TransportError, readings.readings[0].Transport)
	assert.Equal(t, "freezer-2", readings.readings[1].FreezerID)
	assert.Equal(t, models.TransportOK, readings.readings[1].Transport)
}

type panicReader struct{}

func (panicReader) Read(_ context.Context, freezer *models.Freezer) (*models.Sample, error) {
	if freezer.FreezerID == "freezer-1" {
		panic("boom")
	}
	return &models.Sample{FreezerID: freezer.FreezerID, Temperature: -20.0, Timestamp: time.Now().Unix()}, nil
}

func TestPollAll_PanicIsolation(t *testing.T) {
	freezers := &fakeFreezerSource{
		freezers: []models.Freezer{
			{FreezerID: "freezer-1", Active: true},
			{FreezerID: "freezer-2", Active: true},
		},
		profiles: map[string]*models.ThresholdProfile{
			"freezer-1": coldProfile(),
			"freezer-2": coldProfile(),
		},
	}
	readings := &fakeReadingSink{}
	alerts := &fakeAlertHandler{}

	s := NewScheduler(schedulerConfig(), freezers, readings, panicReader{}, alerts, zap.NewNop())

	assert.NotPanics(t, func() { s.PollAll(context.Background()) })
	require.Len(t, readings.readings, 1)
	assert.Equal(t, "freezer-2", readings.readings[0].FreezerID)
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	cfg := schedulerConfig()
	cfg.Monitor.Enabled = false

	s := NewScheduler(cfg, &fakeFreezerSource{}, &fakeReadingSink{}, &mapReader{}, &fakeAlertHandler{}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not return when disabled")
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := schedulerConfig()
	cfg.Monitor.InitialDelay = time.Hour // 未到首轮就取消

	s := NewScheduler(cfg, &fakeFreezerSource{}, &fakeReadingSink{}, &mapReader{}, &fakeAlertHandler{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
