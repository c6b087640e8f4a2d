package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/LeventeLantos/callme-reminders/internal/cache"
	"github.com/LeventeLantos/callme-reminders/internal/delivery"
	"github.com/LeventeLantos/callme-reminders/internal/model"
	"github.com/LeventeLantos/callme-reminders/internal/repo"
	"github.com/LeventeLantos/callme-reminders/internal/scheduler"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type CycleRunner interface {
	RunOnce(ctx context.Context) (delivery.CycleStats, error)
}

type Handler struct {
	loops    *scheduler.Group
	runner   CycleRunner
	repo     repo.ReminderRepository
	receipts cache.ReceiptCache
}

// NewHandler wires the operator endpoints. receipts may be nil when no cache
// is configured.
func NewHandler(loops *scheduler.Group, runner CycleRunner, r repo.ReminderRepository, receipts cache.ReceiptCache) *Handler {
	return &Handler{loops: loops, runner: runner, repo: r, receipts: receipts}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.loops.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.loops.StartAll()
	writeJSON(w, http.StatusOK, h.loops.Status())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.loops.StopAll()
	writeJSON(w, http.StatusOK, h.loops.Status())
}

func (h *Handler) SchedulerRun(w http.ResponseWriter, r *http.Request) {
	stats, err := h.runner.RunOnce(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, delivery.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := model.Completed
	if raw := q.Get("status"); raw != "" {
		s, err := model.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		status = s
	}

	limit := parseInt(q.Get("limit"), defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := parseInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	items, err := h.repo.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []model.Reminder{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}

	m, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := reminderID(w, r)
	if !ok {
		return
	}
	if h.receipts == nil {
		writeError(w, http.StatusNotFound, errors.New("receipt cache not configured"))
		return
	}

	rc, err := h.receipts.LookupReceipt(r.Context(), id)
	if errors.Is(err, cache.ErrReceiptNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reminderId":     rc.ReminderID,
		"callId":         rc.CallID,
		"idempotencyKey": rc.IdempotencyKey,
		"attempt":        rc.Attempt,
		"calledAt":       rc.CalledAt,
	})
}

func reminderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid reminder id"))
		return 0, false
	}
	return id, true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
