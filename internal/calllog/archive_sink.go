package calllog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openfold/brokergate/internal/calllog/archive"
	"go.uber.org/zap"
)

// ArchiveSink buffers call records and periodically flushes them as
// JSONL batches to a storage backend. Flush failures are logged and
// the batch is retained for the next attempt; the sink never reports
// errors to callers.
type ArchiveSink struct {
	storage  archive.Storage
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu  sync.Mutex
	buf []Record
}

// NewArchiveSink creates an archive sink flushing at the given interval.
func NewArchiveSink(storage archive.Storage, interval time.Duration, log *zap.Logger) *ArchiveSink {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ArchiveSink{
		storage:  storage,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

func (s *ArchiveSink) Log(rec Record) {
	s.mu.Lock()
	s.buf = append(s.buf, rec)
	s.mu.Unlock()
}

// Run flushes on a ticker until the context is cancelled, then flushes
// one final time.
func (s *ArchiveSink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush(context.Background())
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush writes the buffered batch, if any, as one JSONL object per
// record under calls/<date>/<time>.jsonl.
func (s *ArchiveSink) Flush(ctx context.Context) {
	s.mu.Lock()
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	for _, rec := range batch {
		if err := enc.Encode(rec); err != nil {
			s.log.Warn("encoding call record", zap.Error(err))
		}
	}

	now := s.now().UTC()
	path := fmt.Sprintf("calls/%s/%s.jsonl", now.Format("2006-01-02"), now.Format("150405.000000000"))
	if err := s.storage.Write(ctx, path, out.Bytes()); err != nil {
		s.log.Warn("archiving call records", zap.Error(err), zap.Int("records", len(batch)))
		// Put the batch back so a later flush can retry.
		s.mu.Lock()
		s.buf = append(batch, s.buf...)
		s.mu.Unlock()
	}
}
