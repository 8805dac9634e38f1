package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/satvik-basket/backend/internal/auth"
	"github.com/satvik-basket/backend/internal/cart"
	"github.com/satvik-basket/backend/internal/order"
	"github.com/satvik-basket/backend/internal/product"
)

type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type ShippingAddressRequest struct {
	FullName     string `json:"full_name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	AddressLine1 string `json:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	Pincode      string `json:"pincode" validate:"required"`
	Country      string `json:"country" validate:"required"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"omitempty,oneof=RAZORPAY COD"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=SHIPPED DELIVERED CANCELLED"`
}

type OrderHandler struct {
	orders   order.Service
	carts    *cart.Store
	validate *validator.Validate
}

// NewOrderHandler wires the order endpoints. carts may be nil when no cart
// store is configured.
func NewOrderHandler(orders order.Service, carts *cart.Store) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		carts:    carts,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders", h.handleListOrders)
	router.Get("/orders/pending", h.handleGetPendingOrder)
	router.Get("/orders/{id}", h.handleGetOrderByID)
}

// RegisterAdminRoutes mounts the fulfillment mutations. The router group
// must carry the admin gate.
func (h *OrderHandler) RegisterAdminRoutes(router chi.Router) {
	router.Patch("/orders/{id}/status", h.handleUpdateOrderStatus)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var requestPayload CreateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode order request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondValidationError(w, err)
		return
	}

	input, err := toCreateOrderInput(requestPayload)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid product id in order")
		return
	}

	createdOrder, err := h.orders.CreateOrder(r.Context(), userID, input)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to create order via service")
		respondWithError(w, mapErrorToStatusCode(err), createOrderClientMessage(err))
		return
	}

	// Best effort: a stale cart never blocks a placed order.
	if h.carts != nil {
		if err := h.carts.Clear(r.Context(), userID); err != nil {
			log.Warn().Err(err).Stringer("user_id", userID).Msg("Failed to clear cart after order creation")
		}
	}

	respondWithJSON(w, http.StatusCreated, createdOrder)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	orders, err := h.orders.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to list orders via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// handleGetPendingOrder resumes an interrupted checkout: the caller's newest
// order still awaiting payment.
func (h *OrderHandler) handleGetPendingOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	pendingOrder, err := h.orders.GetLatestPendingOrder(r.Context(), userID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "No pending order")
			return
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to get pending order via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to get pending order")
		return
	}

	respondWithJSON(w, http.StatusOK, pendingOrder)
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	foundOrder, err := h.orders.GetOrderByID(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get order by id via service")

		clientMessage := "Failed to get order"
		if errors.Is(err, order.ErrOrderNotFound) {
			clientMessage = "Order not found"
		}

		respondWithError(w, mapErrorToStatusCode(err), clientMessage)
		return
	}

	// Orders are visible to their owner only.
	if foundOrder.UserID != userID {
		respondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondWithJSON(w, http.StatusOK, foundOrder)
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var requestPayload UpdateOrderStatusRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode status request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondValidationError(w, err)
		return
	}

	err = h.orders.UpdateOrderStatus(r.Context(), orderID, order.Status(requestPayload.Status))
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to update order status via service")

		clientMessage := "Failed to update order status"
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrInvalidStatusTransition):
			clientMessage = "Invalid status transition"
		}

		respondWithError(w, mapErrorToStatusCode(err), clientMessage)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toCreateOrderInput(requestPayload CreateOrderRequest) (order.CreateOrderInput, error) {
	items := make([]order.ItemInput, 0, len(requestPayload.Items))
	for _, requestItem := range requestPayload.Items {
		productID, err := uuid.FromString(requestItem.ProductID)
		if err != nil {
			return order.CreateOrderInput{}, err
		}
		items = append(items, order.ItemInput{ProductID: productID, Quantity: requestItem.Quantity})
	}

	return order.CreateOrderInput{
		Items: items,
		ShippingAddress: order.Address{
			FullName:     requestPayload.ShippingAddress.FullName,
			Phone:        requestPayload.ShippingAddress.Phone,
			AddressLine1: requestPayload.ShippingAddress.AddressLine1,
			AddressLine2: requestPayload.ShippingAddress.AddressLine2,
			City:         requestPayload.ShippingAddress.City,
			State:        requestPayload.ShippingAddress.State,
			Pincode:      requestPayload.ShippingAddress.Pincode,
			Country:      requestPayload.ShippingAddress.Country,
		},
		PaymentMethod: requestPayload.PaymentMethod,
	}, nil
}

func createOrderClientMessage(err error) string {
	switch {
	case errors.Is(err, order.ErrNoItems):
		return "Order must contain at least one item"
	case errors.Is(err, order.ErrInvalidQuantity):
		return "Item quantity must be at least one"
	case errors.Is(err, order.ErrIncompleteAddress):
		return "Shipping address is incomplete"
	case errors.Is(err, product.ErrProductNotFound):
		return "Product not found or unavailable"
	default:
		return "Failed to create order"
	}
}
