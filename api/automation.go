package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/voyago/fulfillment/models"
	"github.com/voyago/fulfillment/services"
	"github.com/voyago/fulfillment/stores"
	"github.com/voyago/fulfillment/utils"
)

// AutomationHandler exposes the operator surface: manual event dispatch, the
// failure queue view, manual retries and lock inspection.
type AutomationHandler struct {
	automation   *services.AutomationService
	retryService *services.RetryService
	failureStore *stores.FailureStore
	lockStore    *stores.ActionLockStore
	staleLockAge time.Duration
}

func CreateAutomationHandler(
	automation *services.AutomationService,
	retryService *services.RetryService,
	failureStore *stores.FailureStore,
	lockStore *stores.ActionLockStore,
	staleLockAge time.Duration,
) *AutomationHandler {
	return &AutomationHandler{
		automation:   automation,
		retryService: retryService,
		failureStore: failureStore,
		lockStore:    lockStore,
		staleLockAge: staleLockAge,
	}
}

func (h *AutomationHandler) HandleDispatchEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Event == "" || req.BookingRef == "" {
		http.Error(w, "event and booking_ref are required", http.StatusBadRequest)
		return
	}

	req.ActorType = models.ActorAdmin
	if req.ActorID == "" {
		req.ActorID = r.Header.Get("X-Admin-User")
	}

	if err := h.automation.Dispatch(r.Context(), &req); err != nil {
		if utils.IsFatal(err) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
			return
		}
		// Queued for retry; report the failure but not as a server fault.
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"dispatched": false,
			"queued":     true,
			"error":      err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"dispatched": true})
}

func (h *AutomationHandler) HandleListFailures(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	filter := models.FailureFilter{
		BookingID:   query.Get("booking_id"),
		BookingCode: query.Get("booking_code"),
		Event:       query.Get("event"),
		Status:      query.Get("status"),
		Limit:       clampLimit(limit),
		Offset:      offset,
	}

	items, total, err := h.failureStore.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to list failures"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

func (h *AutomationHandler) HandleRetryFailure(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	item, err := h.retryService.RetryItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, stores.ErrFailureNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Failure item not found"})
			return
		}
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, item)
}

type lockView struct {
	*models.SupplierActionLock
	Stale bool `json:"stale"`
}

func (h *AutomationHandler) HandleListLocks(w http.ResponseWriter, r *http.Request) {
	bookingID := r.URL.Query().Get("booking_id")
	if bookingID == "" {
		http.Error(w, "booking_id is required", http.StatusBadRequest)
		return
	}

	locks, err := h.lockStore.ListByBooking(r.Context(), bookingID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to list locks"})
		return
	}

	cutoff := time.Now().Add(-h.staleLockAge)
	views := make([]lockView, 0, len(locks))
	for _, lock := range locks {
		views = append(views, lockView{
			SupplierActionLock: lock,
			Stale:              lock.Status == models.LockStatusPending && lock.StartedAt.Before(cutoff),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": views})
}

func (h *AutomationHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	unlocked, err := h.lockStore.Unlock(r.Context(), key, h.staleLockAge)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to unlock"})
		return
	}
	if !unlocked {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "Lock is not failed or stale-pending; refusing to unlock an in-flight action",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"unlocked": true})
}
