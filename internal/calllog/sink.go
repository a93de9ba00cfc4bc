// Package calllog records every gateway call: provider, operation,
// outcome, duration. Sinks are fire-and-forget — a failing sink never
// fails the caller's request.
package calllog

import (
	"time"

	"go.uber.org/zap"
)

// Record is one gateway call.
type Record struct {
	Time       time.Time      `json:"time"`
	Provider   string         `json:"provider"`
	Operation  string         `json:"operation"`
	Status     string         `json:"status"` // "ok" or the error code
	DurationMS int64          `json:"duration_ms"`
	Cached     bool           `json:"cached"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Sink consumes call records. Implementations must not block and must
// not propagate failures to the caller.
type Sink interface {
	Log(rec Record)
}

// ZapSink writes records to a structured logger.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink creates a sink backed by a zap logger.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Log(rec Record) {
	s.log.Info("provider call",
		zap.String("provider", rec.Provider),
		zap.String("operation", rec.Operation),
		zap.String("status", rec.Status),
		zap.Int64("duration_ms", rec.DurationMS),
		zap.Bool("cached", rec.Cached),
	)
}

// MultiSink fans a record out to several sinks.
type MultiSink []Sink

func (m MultiSink) Log(rec Record) {
	for _, s := range m {
		s.Log(rec)
	}
}

// NopSink discards records.
type NopSink struct{}

func (NopSink) Log(Record) {}
