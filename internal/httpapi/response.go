package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/MrEthical07/campusauth"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{Status: "error", Code: code, Message: message})
}

// mapError turns an engine error into a status and a message that carries
// no storage detail.
func mapError(err error) (int, string, string) {
	reason := campusauth.DenialReasonOf(err)
	switch reason {
	case campusauth.ReasonInvalidCredentials:
		return http.StatusUnauthorized, string(reason), "invalid username or password"
	case campusauth.ReasonAccountLocked:
		return http.StatusLocked, string(reason), err.Error()
	case campusauth.ReasonAccountExpired:
		return http.StatusForbidden, string(reason), "account expired, contact an administrator"
	case campusauth.ReasonAccountBlocked:
		return http.StatusForbidden, string(reason), "account blocked, contact an administrator"
	case campusauth.ReasonMFARequired, campusauth.ReasonInvalidMFACode,
		campusauth.ReasonSessionSuperseded, campusauth.ReasonTokenRevoked, campusauth.ReasonTokenInvalid:
		return http.StatusUnauthorized, string(reason), err.Error()
	case campusauth.ReasonMFASetupRequired:
		return http.StatusConflict, string(reason), err.Error()
	case campusauth.ReasonRateLimited:
		return http.StatusTooManyRequests, string(reason), "too many requests"
	case campusauth.ReasonResetTokenInvalid, campusauth.ReasonPasswordPolicy, campusauth.ReasonInvalidArgument:
		return http.StatusBadRequest, string(reason), err.Error()
	case campusauth.ReasonAdminImmutable:
		return http.StatusConflict, string(reason), err.Error()
	case campusauth.ReasonNotFound:
		return http.StatusNotFound, string(reason), "account not found"
	default:
		return http.StatusInternalServerError, string(campusauth.ReasonInternal), "internal error"
	}
}

func writeMappedError(w http.ResponseWriter, err error) {
	var locked *campusauth.AccountLockedError
	if errors.As(err, &locked) {
		w.Header().Set("Retry-After", strconv.FormatInt(locked.SecondsRemaining(), 10))
	}
	status, code, msg := mapError(err)
	writeError(w, status, code, msg)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

const maxBodyBytes = 64 << 10
