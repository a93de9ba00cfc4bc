// Package api exposes the gateway over HTTP. The server treats the
// gateway as an opaque collaborator: it maps inputs to facade calls
// and gateway error codes to HTTP statuses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openfold/brokergate/internal/core"
	"github.com/openfold/brokergate/internal/gateway"
	"github.com/openfold/brokergate/internal/metrics"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for the gateway
type Server struct {
	httpServer *http.Server
	gateway    *gateway.Gateway
	registry   *provider.Registry
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	MetricsPath string
	Metrics     *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, gw *gateway.Gateway, registry *provider.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		gateway:  gw,
		registry: registry,
		logger:   logger,
		mux:      mux,
	}

	mux.HandleFunc("/v1/quote/", s.handleQuote)
	mux.HandleFunc("/v1/bars/", s.handleBars)
	mux.HandleFunc("/v1/providers", s.handleProviders)
	mux.HandleFunc("/healthz", s.handleHealth)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/v1/quote/")
	providerID := r.URL.Query().Get("provider")

	quote, err := s.gateway.GetQuote(r.Context(), symbol, providerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quoteBody(quote))
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/v1/bars/")
	q := r.URL.Query()
	interval := q.Get("interval")
	if interval == "" {
		interval = "1Day"
	}

	var start, end time.Time
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, core.WrapError(core.ErrInvalidInput, fmt.Errorf("bad start: %w", err)))
			return
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, core.WrapError(core.ErrInvalidInput, fmt.Errorf("bad end: %w", err)))
			return
		}
		end = t
	}

	bars, err := s.gateway.GetBars(r.Context(), symbol, interval, start, end, q.Get("provider"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]map[string]any, len(bars))
	for i, b := range bars {
		out[i] = map[string]any{
			"symbol": b.Symbol, "interval": b.Interval,
			"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close,
			"volume": b.Volume, "time": b.Time.Format(time.RFC3339),
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bars": out})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	type rateStatus struct {
		Remaining  int     `json:"remaining"`
		RetryAfter float64 `json:"retry_after_seconds"`
		Exhausted  bool    `json:"exhausted"`
	}
	type providerInfo struct {
		ID           string      `json:"id"`
		DisplayName  string      `json:"display_name"`
		Capabilities []string    `json:"capabilities"`
		Rate         *rateStatus `json:"rate,omitempty"`
	}

	var out []providerInfo
	for _, c := range s.registry.All() {
		d := c.Descriptor()
		caps := make([]string, len(d.Capabilities))
		for i, cap := range d.Capabilities {
			caps[i] = string(cap)
		}
		info := providerInfo{ID: d.ID, DisplayName: d.DisplayName, Capabilities: caps}
		if rate, ok := s.gateway.RateStatus(d.ID); ok {
			info.Rate = &rateStatus{
				Remaining:  rate.Remaining,
				RetryAfter: rate.RetryAfter.Seconds(),
				Exhausted:  rate.Exhausted,
			}
		}
		out = append(out, info)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func quoteBody(q *core.Quote) map[string]any {
	body := map[string]any{
		"symbol":   q.Symbol,
		"price":    q.Price,
		"time":     q.Time.Format(time.RFC3339),
		"provider": q.Provider,
	}
	// Absent optionals are omitted, not zeroed.
	if q.Bid.Valid {
		body["bid"] = q.Bid.Value
	}
	if q.Ask.Valid {
		body["ask"] = q.Ask.Value
	}
	if q.Volume.Valid {
		body["volume"] = q.Volume.Value
	}
	return body
}

// writeError maps the gateway error taxonomy onto HTTP statuses, each
// distinct so API callers can branch on the cause.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	message := err.Error()

	var gwErr *core.Error
	if errors.As(err, &gwErr) {
		code = gwErr.Code
		switch {
		case errors.Is(gwErr, core.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(gwErr, core.ErrMissingCredentials):
			status = http.StatusPreconditionFailed
		case errors.Is(gwErr, core.ErrUnsupportedCapability), errors.Is(gwErr, core.ErrProviderNotFound):
			status = http.StatusNotFound
		case errors.Is(gwErr, core.ErrRateLimited):
			status = http.StatusTooManyRequests
			if gwErr.RetryAfter > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(gwErr.RetryAfter.Seconds())))
			}
		case errors.Is(gwErr, core.ErrProviderUnavailable):
			status = http.StatusServiceUnavailable
		case errors.Is(gwErr, core.ErrHTTP):
			status = http.StatusBadGateway
		case errors.Is(gwErr, core.ErrParse):
			status = http.StatusBadGateway
		}
	}

	s.logger.Warn("request failed", zap.String("code", code), zap.Error(err))
	s.writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", zap.Error(err))
	}
}
