// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/Roughriver74/bitrix-dash/internal/bitrix"
	"github.com/Roughriver74/bitrix-dash/internal/dashboard"
	"github.com/Roughriver74/bitrix-dash/internal/logging"
	"github.com/Roughriver74/bitrix-dash/internal/models"
	"github.com/Roughriver74/bitrix-dash/internal/stream"
)

// Loader is the pipeline surface the handlers consume.
type Loader interface {
	Load(ctx context.Context, force bool, progress dashboard.ProgressFunc) (*models.DashboardResult, error)
}

// Handler serves the dashboard endpoints.
type Handler struct {
	service   Loader
	startTime time.Time
}

// NewHandler creates the endpoint handler over the pipeline.
func NewHandler(service Loader) *Handler {
	return &Handler{service: service, startTime: time.Now()}
}

// forceRefresh reads the cache-bypass query flag.
func forceRefresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	return v == "true" || v == "1"
}

// Dashboard serves GET /api/v1/dashboard: the full result as one JSON body.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	result, err := h.service.Load(r.Context(), forceRefresh(r), nil)
	if err != nil {
		h.writeLoadError(rw, r, err)
		return
	}
	rw.Success(result)
}

// writeLoadError maps pipeline failures onto HTTP statuses: missing
// department is a 404, an upstream timeout a 504, anything else upstream a
// 502.
func (h *Handler) writeLoadError(rw *ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).Msg("Dashboard load failed")

	switch {
	case errors.Is(err, dashboard.ErrDepartmentNotFound):
		rw.NotFound(loadErrorMessage(err))
	case bitrix.IsTimeout(err):
		rw.Error(http.StatusGatewayTimeout, ErrCodeUpstreamTimeout, loadErrorMessage(err))
	default:
		rw.Error(http.StatusBadGateway, ErrCodeUpstreamFailed, loadErrorMessage(err))
	}
}

// loadErrorMessage renders the user-facing message for a pipeline failure.
func loadErrorMessage(err error) string {
	switch {
	case errors.Is(err, dashboard.ErrDepartmentNotFound):
		return "department not found"
	case bitrix.IsTimeout(err):
		return "request to Bitrix24 timed out"
	default:
		return "failed to load dashboard data"
	}
}

// DashboardStream serves GET /api/v1/dashboard/stream: the same pipeline
// delivered as an SSE stream of progress frames and a chunked or inline
// result.
func (h *Handler) DashboardStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		NewResponseWriter(w, r).InternalError("streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	h.runStream(r, stream.NewEmitter(&sseSink{w: w, flusher: flusher}))
}

// runStream drives one pipeline run against an emitter, over any transport.
// Sink write failures mean the consumer left; the pipeline result is simply
// dropped.
func (h *Handler) runStream(r *http.Request, emitter *stream.Emitter) {
	ctx := r.Context()
	log := logging.Ctx(ctx)

	if err := emitter.Start(); err != nil {
		return
	}

	result, err := h.service.Load(ctx, forceRefresh(r), func(message string, percent int) {
		// A failed progress write marks the emitter terminated; the
		// pipeline keeps running and the result still lands in cache.
		_ = emitter.Progress(message, percent)
	})
	if err != nil {
		if failErr := emitter.Fail(loadErrorMessage(err)); failErr != nil && !errors.Is(failErr, stream.ErrTerminated) {
			log.Debug().Err(failErr).Msg("Stream consumer gone before error frame")
		}
		return
	}

	if err := emitter.Complete(ctx, result); err != nil && !errors.Is(err, stream.ErrTerminated) {
		log.Debug().Err(err).Msg("Stream consumer gone before completion")
	}
}

// sseSink writes frames in Server-Sent Events format, flushing per frame.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(frame stream.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Health serves GET /health with overall status and uptime.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthLive serves GET /health/live: alive as long as the process runs,
// regardless of upstream state.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady serves GET /health/ready: ready once the pipeline is wired.
// Upstream reachability is deliberately not probed here; a degraded portal
// must not knock the service out of rotation while cached results can still
// be served.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		NewResponseWriter(w, r).Error(http.StatusServiceUnavailable, ErrCodeInternalError, "pipeline not initialized")
		return
	}
	NewResponseWriter(w, r).Success(map[string]interface{}{"ready": true})
}
