package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopacc-api/internal/application/fulfillment"
	"github.com/shopacc-api/internal/domain"
)

// FulfillmentHandler lets the owner inspect and retry failed deliveries.
type FulfillmentHandler struct {
	svc fulfillment.Service
}

func NewFulfillmentHandler(svc fulfillment.Service) *FulfillmentHandler {
	return &FulfillmentHandler{svc: svc}
}

func (h *FulfillmentHandler) ListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := h.svc.ListFailures(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if failures == nil {
		failures = []domain.FulfillmentFailure{}
	}
	writeData(w, http.StatusOK, failures, "")
}

func (h *FulfillmentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "orderCode")
	if err := h.svc.Retry(r.Context(), code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"orderCode": code}, "order delivered")
}
