package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopacc-api/internal/application/product"
	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/transport/http/middleware"
)

// ProductHandler serves the public product view and the owner catalogue.
type ProductHandler struct {
	svc product.Service
}

func NewProductHandler(svc product.Service) *ProductHandler { return &ProductHandler{svc: svc} }

type snapshotView struct {
	*domain.ProductSnapshot
	Available bool `json:"available"`
}

// Public returns a product without its credentials.
func (h *ProductHandler) Public(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "productCode"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snapshotView{ProductSnapshot: snap, Available: h.svc.IsAvailable(snap)}, "")
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeData(w, http.StatusOK, products, "")
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p, "")
}

func (h *ProductHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetByCode(r.Context(), chi.URLParam(r, "productCode"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p, "")
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	var req domain.CreateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.svc.Create(r.Context(), claims.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, p, "product created")
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "productId"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p, "product updated")
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Delete(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p, "product deleted")
}
