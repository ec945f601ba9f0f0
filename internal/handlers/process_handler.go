package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mcpanel/internal/console"
	"mcpanel/internal/models"
	"mcpanel/internal/service"
)

const defaultEventLimit = 50

type ProcessHandler struct {
	sv    *service.Supervisor
	queue *console.Queue
	log   *zap.SugaredLogger
}

func NewProcessHandler(sv *service.Supervisor, queue *console.Queue, log *zap.SugaredLogger) *ProcessHandler {
	return &ProcessHandler{sv: sv, queue: queue, log: log}
}

func writeJSON(log *zap.SugaredLogger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debugf("error encoding JSON response: %s", err)
	}
}

func (h *ProcessHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(h.log, w, status, data)
}

func (h *ProcessHandler) writeError(w http.ResponseWriter, status int, err error, message string) {
	h.writeJSON(w, status, models.ActionResponse{
		Status:  "error",
		Message: message,
		Error:   err.Error(),
	})
}

func (h *ProcessHandler) writeSuccess(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, models.ActionResponse{
		Status:  "success",
		Message: message,
	})
}

// writeLifecycleError maps supervisor errors to status codes: caller mistakes are 400s,
// launch and I/O failures are 500s.
func (h *ProcessHandler) writeLifecycleError(w http.ResponseWriter, err error) {
	var launchErr *service.LaunchError
	var writeErr *service.WriteError
	switch {
	case errors.Is(err, service.ErrAlreadyRunning):
		h.writeError(w, http.StatusBadRequest, err, "Server is already running.")
	case errors.Is(err, service.ErrNotRunning):
		h.writeError(w, http.StatusBadRequest, err, "Server is not running.")
	case errors.Is(err, service.ErrEmptyCommand):
		h.writeError(w, http.StatusBadRequest, err, "Command cannot be empty.")
	case errors.As(err, &launchErr) && launchErr.Reason == service.LaunchArtifactNotFound:
		h.writeError(w, http.StatusInternalServerError, err, launchErr.Path+" not found. Please place it in the server directory.")
	case errors.As(err, &writeErr):
		h.writeError(w, http.StatusInternalServerError, err, "Failed to write to the server console.")
	default:
		h.writeError(w, http.StatusInternalServerError, err, "An error occurred: "+err.Error())
	}
}

func (h *ProcessHandler) writeStopOutcome(w http.ResponseWriter, outcome service.StopOutcome, message string) {
	if outcome == service.StopForcedKill {
		h.writeJSON(w, http.StatusOK, models.ActionResponse{
			Status:  "warning",
			Message: "Server did not respond to stop command. Process was killed.",
		})
		return
	}
	h.writeSuccess(w, message)
}

// gracePeriod reads an optional ?grace= duration, falling back to the configured one.
func (h *ProcessHandler) gracePeriod(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("grace")
	if raw == "" {
		return h.sv.GracePeriod(), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("grace period must not be negative")
	}
	return d, nil
}

func (h *ProcessHandler) StartServer(w http.ResponseWriter, r *http.Request) {
	if err := h.sv.Start(); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	h.writeSuccess(w, "Server starting...")
}

func (h *ProcessHandler) StopServer(w http.ResponseWriter, r *http.Request) {
	grace, err := h.gracePeriod(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err, "Invalid grace period.")
		return
	}

	outcome, err := h.sv.Stop(grace)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	h.writeStopOutcome(w, outcome, "Server stopped.")
}

func (h *ProcessHandler) RestartServer(w http.ResponseWriter, r *http.Request) {
	grace, err := h.gracePeriod(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err, "Invalid grace period.")
		return
	}

	outcome, err := h.sv.Restart(grace)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	h.writeStopOutcome(w, outcome, "Server restarting...")
}

func (h *ProcessHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	var req models.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err, "Request body must be JSON with a command field.")
		return
	}

	if err := h.sv.SendCommand(req.Command); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	h.writeSuccess(w, "Command sent.")
}

func (h *ProcessHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.sv.Info())
}

func (h *ProcessHandler) GetConsole(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, models.ConsoleLines{Lines: h.queue.DrainAvailable()})
}

func (h *ProcessHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, errors.New("invalid limit"), "limit must be a positive integer.")
			return
		}
		limit = n
	}

	if level := r.URL.Query().Get("level"); level != "" {
		h.writeJSON(w, http.StatusOK, h.sv.Events().GetByLevel(level, limit))
		return
	}
	h.writeJSON(w, http.StatusOK, h.sv.Events().GetLast(limit))
}
