package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopacc-api/internal/application/order"
	"github.com/shopacc-api/internal/domain"
)

// OrderHandler creates orders and reports their status.
type OrderHandler struct {
	svc order.Service
	now func() time.Time
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc, now: time.Now}
}

// Amount accepts a JSON number or a numeric string. Fractions are truncated
// toward zero; other text is rejected.
type Amount int64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return domain.ErrInvalidAmount
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*a = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
			return domain.ErrInvalidAmount
		}
		n = int64(f)
	}
	*a = Amount(n)
	return nil
}

type createOrderRequest struct {
	ProductCode string `json:"productCode"`
	Email       string `json:"email"`
	Amount      Amount `json:"amount"`
}

// orderView adds the derived expiry flag to a stored order.
type orderView struct {
	*domain.Order
	Expired bool `json:"expired"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		if !errors.Is(err, domain.ErrInvalidAmount) {
			err = domain.ErrInvalidPayload
		}
		writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.CreateOrder(r.Context(), order.CreateOrderRequest{
		ProductCode: req.ProductCode,
		Email:       req.Email,
		Amount:      int64(req.Amount),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res, "order created")
}

func (h *OrderHandler) Status(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrderStatus(r.Context(), chi.URLParam(r, "orderCode"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, orderView{Order: o, Expired: o.Expired(h.now())}, "")
}
