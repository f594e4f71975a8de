package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"megabridge/internal/domain"
	"megabridge/internal/storage"
)

// DefaultRecordTimeout bounds one snapshot write.
const DefaultRecordTimeout = 5 * time.Second

// Recorder persists refreshed tables as price snapshots.
// Degraded entries are skipped: they carry no new observation.
type Recorder struct {
	store   storage.PriceSnapshotStore
	timeout time.Duration
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store storage.PriceSnapshotStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		timeout: DefaultRecordTimeout,
		logger:  logger,
	}
}

// Listen is a Listener. The write happens on its own goroutine.
func (r *Recorder) Listen(e *Entry) {
	if e == nil || e.Degraded {
		return
	}
	snapshots := domain.SnapshotsFromTable(e.Table, e.FetchedAt.UnixMilli(), e.Degraded)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.store.InsertBulk(ctx, snapshots); err != nil {
			r.logger.Warn("record price snapshots",
				zap.Int("snapshots", len(snapshots)),
				zap.Error(err),
			)
			return
		}
		r.logger.Debug("recorded price snapshots", zap.Int("snapshots", len(snapshots)))
	}()
}

// Wait blocks until pending writes finish.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
