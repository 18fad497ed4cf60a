package metrics

import (
	"context"
	"math"
	"sync"
	"time"

	"docvault/internal/domain/upload"
	"docvault/pkg/logger"

	"go.uber.org/zap"
)

const defaultWriteTimeout = 10 * time.Second

type Store interface {
	Insert(ctx context.Context, m upload.TransferMetrics) error
}

type Recorder struct {
	store   Store
	agent   string
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

// NewRecorder returns a recorder writing to store; agent identifies this
// process in the user_agent column.
func NewRecorder(store Store, agent string, timeout time.Duration, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Recorder{store: store, agent: agent, timeout: timeout, log: log}
}

// SpeedMbps converts a transfer into megabits per second, 0 when the
// duration is not positive.
func SpeedMbps(sizeBytes, uploadMS int64) float64 {
	if uploadMS <= 0 {
		return 0
	}
	return (float64(sizeBytes) / (float64(uploadMS) / 1000)) / (1024 * 1024) * 8
}

// EstimateUploadTime is the expected transfer time at the given speed.
func EstimateUploadTime(sizeBytes int64, speedMbps float64) time.Duration {
	if speedMbps <= 0 {
		return 0
	}
	bytesPerSecond := speedMbps * 1024 * 1024 / 8
	return time.Duration(math.Ceil(float64(sizeBytes)/bytesPerSecond)) * time.Second
}

// Record computes the metrics of a finished session and stores them in the
// background. The computed row is returned immediately.
func (r *Recorder) Record(ctx context.Context, s upload.Session, success bool, errMsg string) upload.TransferMetrics {
	uploadMS := s.Timings.UploadDuration().Milliseconds()

	m := upload.TransferMetrics{
		ClientID:         s.ClientID,
		UploadedBy:       s.UploadedBy,
		FileSize:         s.FileSize,
		Method:           s.Method,
		HashDurationMS:   s.Timings.HashDuration().Milliseconds(),
		UploadDurationMS: uploadMS,
		SpeedMbps:        SpeedMbps(s.FileSize, uploadMS),
		RetryCount:       s.RetryCount,
		ChunksCount:      s.ChunksCount,
		Success:          success,
		ErrorMessage:     errMsg,
		Agent:            r.agent,
	}
	if s.HasDocument() {
		m.DocumentID = s.DocumentID.String()
	}

	if r.store == nil {
		return m
	}

	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(base, r.timeout)
		defer cancel()

		if err := r.store.Insert(writeCtx, m); err != nil {
			r.log.Ctx(base).Warn("failed to persist upload metrics",
				zap.String("client_id", m.ClientID), zap.Bool("success", success), zap.Error(err))
		}
	}()

	return m
}

// Wait blocks until pending writes are done.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
