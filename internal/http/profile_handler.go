package http

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/session"
	"github.com/sirupsen/logrus"
)

type ProfileHandler struct {
	orders Orders
	log    logrus.FieldLogger
}

func NewProfileHandler(orders Orders, log logrus.FieldLogger) *ProfileHandler {
	return &ProfileHandler{orders: orders, log: log}
}

type ProfileResponseDTO struct {
	Phone           string                  `json:"phone"`
	UserID          string                  `json:"userId"`
	DeliveryAddress *domain.DeliveryAddress `json:"deliveryAddress"`
}

type UpdatePhoneRequestDTO struct {
	Phone string `json:"phone" validate:"required"`
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}
	respondJSON(w, r, http.StatusOK, profile(r.Context(), sess))
}

func (h *ProfileHandler) UpdatePhone(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	var req UpdatePhoneRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.orders.RememberPhone(r.Context(), sess, req.Phone); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, profile(r.Context(), sess))
}

func (h *ProfileHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess == nil {
		respondError(w, r, http.StatusUnauthorized, "no_session", "missing session")
		return
	}

	var req domain.DeliveryAddress
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := sess.SetDeliveryAddress(r.Context(), req); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, profile(r.Context(), sess))
}

func profile(ctx context.Context, sess *session.Session) ProfileResponseDTO {
	return ProfileResponseDTO{
		Phone:           sess.Phone(ctx),
		UserID:          sess.UserID(ctx),
		DeliveryAddress: sess.DeliveryAddress(ctx),
	}
}
