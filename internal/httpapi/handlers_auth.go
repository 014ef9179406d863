package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/campusauth"
	"github.com/MrEthical07/campusauth/middleware"
)

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Force replaces a live session elsewhere without asking first.
	Force bool `json:"force,omitempty"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
	// Kind is "totp" (default) or "backup".
	Kind string `json:"kind,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	var opts []campusauth.LoginOption
	if !req.Force {
		opts = append(opts, campusauth.DetectLiveSession())
	}
	res, err := h.engine.Login(r.Context(), strings.TrimSpace(req.Username), req.Password, opts...)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, loginPayload(res))
}

func (h *Handler) mfaValidate(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, string(campusauth.ReasonTokenInvalid), "missing bearer token")
		return
	}
	var req mfaCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "kind must be totp or backup")
		return
	}

	res, err := h.engine.ConfirmLoginMFA(r.Context(), token, strings.TrimSpace(req.Code), kind)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, loginPayload(res))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, string(campusauth.ReasonTokenInvalid), "missing bearer token")
		return
	}
	if err := h.engine.Logout(r.Context(), token); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) mfaSetup(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	prov, err := h.engine.GenerateMFASecret(r.Context(), id.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"secret":           prov.Secret,
		"provisioning_uri": prov.URI,
	})
}

func (h *Handler) mfaVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req mfaCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := h.engine.EnableMFA(r.Context(), id.UserID, strings.TrimSpace(req.Code)); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "mfa enabled")
}

func (h *Handler) mfaDisable(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.engine.DisableMFA(r.Context(), id.UserID); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "mfa disabled")
}

func (h *Handler) backupCodes(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	codes, err := h.engine.GenerateBackupCodes(r.Context(), id.UserID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := h.engine.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeMappedError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}

func loginPayload(res *campusauth.LoginResult) map[string]any {
	if res.AlreadyLoggedIn {
		return map[string]any{
			"already_logged_in": true,
			"message":           "already logged in elsewhere; sign in with force to end that session",
		}
	}
	if res.MFARequired {
		return map[string]any{
			"mfa_required":    true,
			"challenge_token": res.ChallengeToken,
		}
	}
	return map[string]any{
		"token":    res.SessionToken,
		"user_id":  res.UserID,
		"username": res.Username,
		"roles":    res.Roles,
	}
}

func parseKind(raw string) (campusauth.MFAKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "totp":
		return campusauth.MFAKindTOTP, true
	case "backup":
		return campusauth.MFAKindBackup, true
	default:
		return 0, false
	}
}

// identity writes a 401 when the guard left the request anonymous.
func identity(w http.ResponseWriter, r *http.Request) (*campusauth.AuthResult, bool) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok || res.MFAPending {
		writeError(w, http.StatusUnauthorized, string(campusauth.ReasonMFARequired), "full session required")
		return nil, false
	}
	return res, true
}

func bearer(r *http.Request) (string, bool) {
	const prefix = "bearer "
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(raw[len(prefix):])
	return token, token != ""
}
