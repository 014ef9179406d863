package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type daysRequest struct {
	Days int `json:"days"`
}

func (h *Handler) accountStatus(w http.ResponseWriter, r *http.Request) {
	h.writeAccountStatus(w, r, chi.URLParam(r, "id"))
}

// ownStatus reports the caller's own lifecycle state.
func (h *Handler) ownStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	h.writeAccountStatus(w, r, id.UserID)
}

func (h *Handler) writeAccountStatus(w http.ResponseWriter, r *http.Request, userID string) {
	info, err := h.engine.GetAccountStatus(r.Context(), userID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	payload := map[string]any{
		"user_id":    info.UserID,
		"username":   info.Username,
		"status":     info.Status.String(),
		"is_admin":   info.IsAdmin,
		"unbounded":  info.Unbounded,
		"expires_at": formatTime(info.AccountExpiresAt),
		"last_login": formatTime(info.LastLoginAt),
	}
	if !info.Unbounded {
		payload["days_until_expiration"] = info.DaysUntilExpiration
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (h *Handler) blockAccount(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "account blocked", h.engine.BlockAccount)
}

func (h *Handler) unblockAccount(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "account unblocked", h.engine.UnblockAccount)
}

func (h *Handler) expireAccount(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "account expired", h.engine.ForceExpire)
}

func (h *Handler) extendAccount(w http.ResponseWriter, r *http.Request) {
	h.daysAction(w, r, "expiration extended", h.engine.ExtendExpiration)
}

func (h *Handler) reduceAccount(w http.ResponseWriter, r *http.Request) {
	h.daysAction(w, r, "expiration reduced", h.engine.ReduceExpiration)
}

func (h *Handler) adminAction(w http.ResponseWriter, r *http.Request, done string, fn func(context.Context, string) error) {
	if err := fn(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, done)
}

func (h *Handler) daysAction(w http.ResponseWriter, r *http.Request, done string, fn func(context.Context, string, int) error) {
	var req daysRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := fn(r.Context(), chi.URLParam(r, "id"), req.Days); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, done)
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
