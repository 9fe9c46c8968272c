package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"slotmanager/internal/adapters/http/middleware"
	"slotmanager/internal/application/orchestrators"
	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/user"
)

// retryAfterSeconds is sent with 503 answers when the store is unavailable.
const retryAfterSeconds = 2

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL")
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err.Error())
	}
}

// errorBody is the JSON shape of every error answer.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Occupancy *int   `json:"occupancy,omitempty"`
	Max       *int   `json:"max,omitempty"`
	Attempted *int   `json:"attempted,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// validationErrors answer 400 with their own message.
var validationErrors = []error{
	slot.ErrTooManyGuests,
	slot.ErrGuestNameTooLong,
	slot.ErrEmptyUserID,
	slot.ErrScoreTooLong,
	slot.ErrNotesTooLong,
	slot.ErrBlankTeamLabel,
	user.ErrMissingDisplayName,
	user.ErrDisplayNameTooLong,
	user.ErrMissingNames,
	user.ErrNameTooLong,
	user.ErrInvalidEmail,
	user.ErrSelfSponsor,
	user.ErrSponsorCycle,
	user.ErrSponsorInactive,
	user.ErrInactiveIdentity,
}

// writeEngineError maps domain and store errors onto HTTP answers.
// Unknown errors are logged and reported as a generic 500.
func writeEngineError(w http.ResponseWriter, err error) {
	var capErr *slot.CapacityError
	switch {
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:     capErr.Error(),
			Code:      "CAPACITY_EXCEEDED",
			Occupancy: &capErr.Occupancy,
			Max:       &capErr.Max,
			Attempted: &capErr.Attempted,
		})
	case errors.Is(err, slot.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, err.Error(), "ALREADY_REGISTERED")
	case errors.Is(err, user.ErrDisplayNameTaken):
		writeError(w, http.StatusConflict, err.Error(), "DISPLAY_NAME_TAKEN")
	case errors.Is(err, user.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error(), "EMAIL_TAKEN")
	case errors.Is(err, slot.ErrNotRegistered):
		writeError(w, http.StatusNotFound, err.Error(), "NOT_REGISTERED")
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "SLOT_NOT_FOUND")
	case errors.Is(err, user.ErrUserNotFound), errors.Is(err, user.ErrSponsorNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "USER_NOT_FOUND")
	case errors.Is(err, slot.ErrForbidden), errors.Is(err, user.ErrNotProfileOwner):
		writeError(w, http.StatusForbidden, err.Error(), "FORBIDDEN")
	case errors.Is(err, slot.ErrStoreUnavailable):
		slog.Warn("store_unavailable", "error", err.Error())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, http.StatusServiceUnavailable, slot.ErrStoreUnavailable.Error(), "STORE_UNAVAILABLE")
	default:
		for _, v := range validationErrors {
			if errors.Is(err, v) {
				writeError(w, http.StatusBadRequest, err.Error(), "INVALID")
				return
			}
		}
		internalError(w, err)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg, "INVALID")
}

// actorFrom builds the engine actor from the resolved identity.
// PRE: RequireUser ran for this request
func actorFrom(r *http.Request) orchestrators.Actor {
	u, _ := middleware.CurrentUser(r.Context())
	return orchestrators.Actor{UserID: u.ID, IsAdmin: u.IsAdmin}
}

// handleHealth handles GET /health
// Unauthenticated liveness check that also pings the slot store.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := stores.SlotStore.Ping(ctx); err != nil {
		slog.Warn("health_check_failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAdminPerf handles GET /api/admin/perf?minutes=N
// Returns the request and query timing snapshot for the last N minutes (default 60).
func handleAdminPerf(w http.ResponseWriter, r *http.Request) {
	if perfCollector == nil {
		writeError(w, http.StatusNotFound, "perf collection disabled", "NOT_FOUND")
		return
	}
	minutes := 60
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "minutes must be a positive integer")
			return
		}
		minutes = n
	}
	since := timeNow().Add(-time.Duration(minutes) * time.Minute)
	writeJSON(w, http.StatusOK, perfCollector.Snapshot(since, 10))
}
