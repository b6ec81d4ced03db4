package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/pkg/logging"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Envelope is the response wrapper every endpoint returns.
type Envelope struct {
	Success          bool   `json:"success"`
	Data             any    `json:"data,omitempty"`
	Error            string `json:"error,omitempty"`
	Code             string `json:"code,omitempty"`
	Message          string `json:"message,omitempty"`
	RemainingSeconds int    `json:"remainingSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any, msg string) {
	writeJSON(w, status, Envelope{Success: true, Data: data, Message: msg})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, Envelope{Error: msg, Code: code, Message: msg})
}

// writeServiceError maps an error kind to its status. Upstream and unknown
// errors are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var cooldown *domain.CooldownError
	if errors.As(err, &cooldown) {
		writeJSON(w, http.StatusTooManyRequests, Envelope{
			Error:            cooldown.Error(),
			Code:             domain.ErrCooldownActive.Code,
			Message:          cooldown.Error(),
			RemainingSeconds: cooldown.Remaining,
		})
		return
	}

	var status int
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	default:
		logging.FromContext(r.Context(), nil).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		code := "INTERNAL_ERROR"
		var de *domain.Error
		if errors.As(err, &de) {
			code = de.Code
		}
		writeError(w, http.StatusInternalServerError, code, "internal server error")
		return
	}

	code, msg := "ERROR", err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		code, msg = de.Code, de.Message
	}
	writeError(w, status, code, msg)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.ErrInvalidPayload
	}
	return nil
}
