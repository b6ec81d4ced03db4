package handler

import (
	"io"
	"net/http"

	"github.com/shopacc-api/internal/application/payment"
	"github.com/shopacc-api/internal/domain"
)

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	svc payment.Service
}

func NewWebhookHandler(svc payment.Service) *WebhookHandler { return &WebhookHandler{svc: svc} }

// Payment passes the raw body through so it can be archived unchanged.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeServiceError(w, r, domain.ErrInvalidPayload)
		return
	}
	res, err := h.svc.HandleWebhook(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	switch {
	case res.Ignored:
		writeData(w, http.StatusOK, res, "transfer ignored")
	case res.AlreadyProcessed:
		writeData(w, http.StatusOK, res, "order already processed")
	default:
		writeData(w, http.StatusOK, res, "payment confirmed")
	}
}
