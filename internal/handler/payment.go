package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/satvik-basket/backend/internal/order"
	"github.com/satvik-basket/backend/internal/payment"
)

type CreatePaymentRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid4"`
}

type CreatePaymentResponse struct {
	Success       bool                  `json:"success"`
	RazorpayOrder payment.ProviderOrder `json:"razorpayOrder"`
	PaymentID     uuid.UUID             `json:"paymentId"`
}

type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
	PaymentID         string `json:"paymentId" validate:"omitempty,uuid4"`
}

type PaymentHandler struct {
	payments payment.Service
	validate *validator.Validate
}

func NewPaymentHandler(payments payment.Service) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		validate: validator.New(),
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments/razorpay/create", h.handleCreatePayment)
	router.Post("/payments/razorpay/verify", h.handleVerifyPayment)
	router.Post("/payments/{paymentId}/fail", h.handleReportFailure)
}

func (h *PaymentHandler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreatePaymentRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode payment request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondValidationError(w, err)
		return
	}

	orderID, err := uuid.FromString(requestPayload.OrderID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid orderId")
		return
	}

	session, err := h.payments.CreatePayment(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to create payment via service")

		clientMessage := "Failed to initiate payment"
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, payment.ErrOrderNotPayable):
			clientMessage = "Order is not awaiting payment"
		case errors.Is(err, payment.ErrProviderUnavailable):
			clientMessage = "Payment provider is unavailable, please retry"
		}

		respondWithError(w, mapErrorToStatusCode(err), clientMessage)
		return
	}

	respondWithJSON(w, http.StatusCreated, CreatePaymentResponse{
		Success:       true,
		RazorpayOrder: session.ProviderOrder,
		PaymentID:     session.PaymentID,
	})
}

func (h *PaymentHandler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var requestPayload VerifyPaymentRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode verify request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondValidationError(w, err)
		return
	}

	input := payment.VerifyInput{
		ProviderOrderID:   requestPayload.RazorpayOrderID,
		ProviderPaymentID: requestPayload.RazorpayPaymentID,
		Signature:         requestPayload.RazorpaySignature,
	}
	if requestPayload.PaymentID != "" {
		paymentID, err := uuid.FromString(requestPayload.PaymentID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid paymentId")
			return
		}
		input.PaymentID = paymentID
	}

	err := h.payments.VerifyPayment(r.Context(), input)
	if err != nil {
		log.Error().Err(err).Str("razorpay_order_id", requestPayload.RazorpayOrderID).Msg("Payment verification failed")

		clientMessage := "Failed to verify payment"
		switch {
		case errors.Is(err, payment.ErrSignatureInvalid):
			clientMessage = "Payment signature verification failed"
		case errors.Is(err, payment.ErrPaymentNotFound):
			clientMessage = "Payment not found"
		case errors.Is(err, payment.ErrNotInitiated):
			clientMessage = "Payment is not awaiting verification"
		case errors.Is(err, payment.ErrPersistenceFailure):
			clientMessage = "Payment captured but confirmation is delayed, contact support"
		}

		respondWithError(w, mapErrorToStatusCode(err), clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PaymentHandler) handleReportFailure(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "paymentId")
	paymentID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("payment_id", idParam).Msg("Failed to parse paymentId parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid paymentId parameter")
		return
	}

	err = h.payments.ReportFailure(r.Context(), paymentID)
	if err != nil {
		log.Error().Err(err).Stringer("payment_id", paymentID).Msg("Failed to mark payment failed via service")

		clientMessage := "Failed to record payment failure"
		switch {
		case errors.Is(err, payment.ErrPaymentNotFound):
			clientMessage = "Payment not found"
		case errors.Is(err, payment.ErrAlreadyFinalized):
			clientMessage = "Payment already succeeded"
		}

		respondWithError(w, mapErrorToStatusCode(err), clientMessage)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
