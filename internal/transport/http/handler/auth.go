package handler

import (
	"net/http"

	"github.com/shopacc-api/internal/application/otp"
)

// AuthHandler drives the email OTP registration flow.
type AuthHandler struct {
	svc otp.Service
}

func NewAuthHandler(svc otp.Service) *AuthHandler { return &AuthHandler{svc: svc} }

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req otp.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	msg := "verification code sent to your email"
	if res.IsResend && res.RemainingSeconds > 0 {
		msg = "a verification code was already sent, check your email"
	}
	writeData(w, http.StatusOK, res, msg)
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otp.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.VerifyOTP(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res, "email verified")
}

func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.svc.ResendOTP(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"email": req.Email}, "a new verification code was sent to your email")
}

func (h *AuthHandler) CheckVerification(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	verified, err := h.svc.IsEmailVerified(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"email": email, "verified": verified}, "")
}

func (h *AuthHandler) ResendCountdown(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	countdown, err := h.svc.GetResendCountdown(r.Context(), email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"email": email, "countdown": countdown}, "")
}

func (h *AuthHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.svc.CompleteRegistration(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"email": req.Email}, "registration completed")
}
