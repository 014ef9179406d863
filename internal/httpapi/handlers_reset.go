package httpapi

import (
	"net/http"
	"strings"
)

type resetRequest struct {
	Username string `json:"username"`
}

type resetVerifyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type resetCompleteRequest struct {
	Username    string `json:"username"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) resetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	prompt, err := h.engine.RequestPasswordReset(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message":            prompt.Message,
		"mfa_setup_required": prompt.MFASetupRequired,
	})
}

func (h *Handler) resetVerify(w http.ResponseWriter, r *http.Request) {
	var req resetVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	token, err := h.engine.VerifyPasswordResetMFA(r.Context(), strings.TrimSpace(req.Username), strings.TrimSpace(req.Code))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"reset_token": token})
}

func (h *Handler) resetComplete(w http.ResponseWriter, r *http.Request) {
	var req resetCompleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	err := h.engine.CompletePasswordReset(r.Context(), strings.TrimSpace(req.Username), strings.TrimSpace(req.Token), req.NewPassword)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "password reset")
}
