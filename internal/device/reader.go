package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coldstore-monitor/internal/models"

	"go.uber.org/zap"
)

// DeviceReader 设备读取接口
// 返回设备的最新采样；读取失败返回包装了 models.ErrTransport 的错误
type DeviceReader interface {
	Read(ctx context.Context, freezer *models.Freezer) (*models.Sample, error)
}

// 传输失败的细分原因，调度层据此落库 transport 状态
var (
	ErrNoSample    = fmt.Errorf("%w: no sample available", models.ErrTransport)
	ErrStaleSample = fmt.Errorf("%w: sample too old", models.ErrTransport)
)

// TransportStatusFor 根据读取错误归类传输状态
func TransportStatusFor(err error) models.TransportStatus {
	if err == nil {
		return models.TransportOK
	}
	if errors.Is(err, ErrStaleSample) || errors.Is(err, context.DeadlineExceeded) {
		return models.TransportTimeout
	}
	return models.TransportError
}

// RetryReader 带重试的读取装饰器
// 每次尝试有独立超时，传输失败时额外重试 retries 次（共 retries+1 次尝试）
type RetryReader struct {
	inner   DeviceReader
	retries int
	timeout time.Duration
	logger  *zap.Logger
}

// NewRetryReader 创建重试装饰器
func NewRetryReader(inner DeviceReader, retries int, timeout time.Duration, logger *zap.Logger) *RetryReader {
	return &RetryReader{
		inner:   inner,
		retries: retries,
		timeout: timeout,
		logger:  logger,
	}
}

// Read 读取设备采样，失败时重试
func (r *RetryReader) Read(ctx context.Context, freezer *models.Freezer) (*models.Sample, error) {
	var lastErr error

	for attempt := 0; attempt <= r.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		sample, err := r.inner.Read(attemptCtx, freezer)
		cancel()

		if err == nil {
			return sample, nil
		}
		lastErr = err

		// 非传输错误不重试
		if !errors.Is(err, models.ErrTransport) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		if attempt < r.retries {
			r.logger.Debug("Device read failed, retrying",
				zap.String("freezer_id", freezer.FreezerID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
	}

	return nil, lastErr
}
