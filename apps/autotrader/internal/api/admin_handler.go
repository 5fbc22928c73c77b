package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/scheduler"
)

type AdminHandler struct {
	responder
	runner Runner
}

func NewAdminHandler(runner Runner, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{responder: responder{logger: logger}, runner: runner}
}

// Tick handles POST /api/admin/tick. The pass keeps running if the client goes away.
func (h *AdminHandler) Tick(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Tick(context.WithoutCancel(r.Context()))
	if errors.Is(err, scheduler.ErrTickInProgress) {
		h.writeErrorResponse(w, http.StatusConflict, "tick_in_progress", "A scheduler tick is already running")
		return
	}
	if errors.Is(err, scheduler.ErrStopped) {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "scheduler_stopped", "The scheduler is shutting down")
		return
	}
	if err != nil {
		h.logger.Error("Manual tick failed", zap.Error(err))
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "tick_failed", err.Error())
		return
	}

	h.logger.Info("Manual tick completed", zap.Int("claimed", report.Claimed), zap.Int("fired", report.Fired))
	h.writeJSONResponse(w, http.StatusOK, TickResponse{
		Reclaimed: report.Reclaimed,
		Claimed:   report.Claimed,
		Fired:     report.Fired,
		Committed: report.Committed,
	})
}

// Sweep handles POST /api/admin/sweep
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.runner.Sweep(r.Context())
	if err != nil {
		h.logger.Error("Manual sweep failed", zap.Error(err))
		h.writeErrorResponse(w, http.StatusServiceUnavailable, "sweep_failed", err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusOK, SweepResponse{Reclaimed: n})
}
