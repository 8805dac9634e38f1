package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/satvik-basket/backend/internal/auth"
	"github.com/satvik-basket/backend/internal/handler"
	"github.com/satvik-basket/backend/internal/order"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, userID uuid.UUID, input order.CreateOrderInput) (*order.Order, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetLatestPendingOrder(ctx context.Context, userID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus order.Status) error {
	args := m.Called(ctx, orderID, newStatus)
	return args.Error(0)
}

// newOrderRouter mirrors the transport wiring: customer routes behind auth,
// fulfillment mutations additionally behind the admin gate.
func newOrderRouter(service order.Service, tokens *auth.Manager) chi.Router {
	h := handler.NewOrderHandler(service, nil)

	router := chi.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(tokens.Middleware)
		h.RegisterRoutes(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(tokens.Middleware)
		r.Use(tokens.RequireAdmin)
		h.RegisterAdminRoutes(r)
	})
	return router
}

func bearerRequest(t *testing.T, method, path, token string, body any) *http.Request {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(jsonBody)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestOrderHandler_handleUpdateOrderStatus_AdminOnly(t *testing.T) {
	tokens := auth.NewManager("test-secret", time.Hour)
	orderID := uuid.Must(uuid.NewV4())
	body := handler.UpdateOrderStatusRequest{Status: "CANCELLED"}

	t.Run("non_admin_forbidden", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService, tokens)

		customerToken, err := tokens.IssueToken(uuid.Must(uuid.NewV4()), false)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, bearerRequest(t, http.MethodPatch, "/orders/"+orderID.String()+"/status", customerToken, body))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockService.AssertNotCalled(t, "UpdateOrderStatus")
	})

	t.Run("admin_allowed", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("UpdateOrderStatus", mock.Anything, orderID, order.StatusCancelled).Return(nil).Once()
		router := newOrderRouter(mockService, tokens)

		adminToken, err := tokens.IssueToken(uuid.Must(uuid.NewV4()), true)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, bearerRequest(t, http.MethodPatch, "/orders/"+orderID.String()+"/status", adminToken, body))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("no_token_unauthorized", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService, tokens)

		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPatch, "/orders/"+orderID.String()+"/status", bytes.NewBuffer(jsonBody))

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		mockService.AssertNotCalled(t, "UpdateOrderStatus")
	})
}

func TestOrderHandler_handleGetPendingOrder(t *testing.T) {
	tokens := auth.NewManager("test-secret", time.Hour)
	userID := uuid.Must(uuid.NewV4())

	t.Run("returns_pending_order", func(t *testing.T) {
		pending := &order.Order{
			ID:            uuid.Must(uuid.NewV4()),
			UserID:        userID,
			Status:        order.StatusCreated,
			PaymentStatus: order.PaymentStatusPending,
			TotalAmount:   200,
		}
		mockService := new(MockOrderService)
		mockService.On("GetLatestPendingOrder", mock.Anything, userID).Return(pending, nil).Once()
		router := newOrderRouter(mockService, tokens)

		token, err := tokens.IssueToken(userID, false)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, bearerRequest(t, http.MethodGet, "/orders/pending", token, nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var got order.Order
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, pending.ID, got.ID)
		mockService.AssertExpectations(t)
	})

	t.Run("none_pending", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("GetLatestPendingOrder", mock.Anything, userID).Return(nil, order.ErrOrderNotFound).Once()
		router := newOrderRouter(mockService, tokens)

		token, err := tokens.IssueToken(userID, false)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, bearerRequest(t, http.MethodGet, "/orders/pending", token, nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}
