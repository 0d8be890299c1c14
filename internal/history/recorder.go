/*
Package history records retrieve queries for analytics without slowing the
request path.

Records are queued on a buffered channel and written in batches by a
background goroutine. Query text is never stored, only its SHA-256 hash.
*/
package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

const (
	// queueSize is the buffer size for pending records.
	// If full, records are dropped (non-blocking).
	queueSize = 1000

	// batchFlushSize is the number of records that triggers an immediate flush.
	batchFlushSize = 10

	// flushInterval is how often pending records are flushed.
	flushInterval = 50 * time.Millisecond

	// writeTimeout bounds a single batch write.
	writeTimeout = 5 * time.Second
)

// Recorder writes search records in the background.
type Recorder struct {
	store   storage.History
	queue   chan storage.SearchRecord
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	stopped atomic.Bool
	now     func() time.Time
	logger  *zap.Logger
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store storage.History, logger *zap.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		queue:  make(chan storage.SearchRecord, queueSize),
		stop:   make(chan struct{}),
		now:    time.Now,
		logger: logging.OrNop(logger),
	}

	r.wg.Add(1)
	go r.run()
	return r
}

// Record queues a record for one query and returns its search id.
// It never blocks; records are dropped when the queue is full or the
// recorder is stopped.
func (r *Recorder) Record(sessionID, query string, results, newCount int) string {
	rec := storage.SearchRecord{
		SearchID:     uuid.NewString(),
		SessionID:    sessionID,
		QueryHash:    storage.HashQuery(query),
		ResultsCount: results,
		NewCount:     newCount,
		Timestamp:    r.now(),
	}

	if r.stopped.Load() {
		return rec.SearchID
	}

	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("history queue full, dropping record", zap.String("session_id", sessionID))
	}
	return rec.SearchID
}

// Pending returns the number of queued records.
func (r *Recorder) Pending() int {
	return len(r.queue)
}

// Stop flushes queued records and stops the background writer.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		r.stopped.Store(true)
		close(r.stop)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]storage.SearchRecord, 0, batchFlushSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.write(batch)
		batch = make([]storage.SearchRecord, 0, batchFlushSize)
	}

	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) >= batchFlushSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-r.stop:
			// Drain what is already queued.
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, rec)
					if len(batch) >= batchFlushSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) write(batch []storage.SearchRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.RecordSearches(ctx, batch); err != nil {
		r.logger.Warn("failed to record search history", zap.Int("records", len(batch)), zap.Error(err))
	}
}
