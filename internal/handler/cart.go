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
)

type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type ReplaceCartRequest struct {
	Items []CartItemRequest `json:"items" validate:"required,dive"`
}

type CartResponse struct {
	Items []cart.Item `json:"items"`
}

type CartHandler struct {
	carts    *cart.Store
	validate *validator.Validate
}

func NewCartHandler(carts *cart.Store) *CartHandler {
	return &CartHandler{
		carts:    carts,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Put("/cart", h.handleReplaceCart)
	router.Delete("/cart", h.handleClearCart)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	items, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to read cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to read cart")
		return
	}

	respondWithJSON(w, http.StatusOK, CartResponse{Items: items})
}

func (h *CartHandler) handleReplaceCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var requestPayload ReplaceCartRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode cart request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		respondValidationError(w, err)
		return
	}

	items, err := parseCartItems(requestPayload.Items)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid product id in cart")
		return
	}

	if err := h.carts.Replace(r.Context(), userID, items); err != nil {
		if errors.Is(err, cart.ErrInvalidQuantity) {
			respondWithError(w, http.StatusBadRequest, "Cart item quantity must be at least one")
			return
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to replace cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}

	respondWithJSON(w, http.StatusOK, CartResponse{Items: items})
}

func parseCartItems(requestItems []CartItemRequest) ([]cart.Item, error) {
	items := make([]cart.Item, 0, len(requestItems))
	for _, requestItem := range requestItems {
		productID, err := uuid.FromString(requestItem.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, cart.Item{ProductID: productID, Quantity: requestItem.Quantity})
	}
	return items, nil
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.carts.Clear(r.Context(), userID); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to clear cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to clear cart")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
