package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/satvik-basket/backend/internal/auth"
	"github.com/satvik-basket/backend/internal/cart"
	"github.com/satvik-basket/backend/internal/handler"
	"github.com/satvik-basket/backend/internal/order"
	"github.com/satvik-basket/backend/internal/payment"
	"github.com/satvik-basket/backend/internal/product"
	"github.com/satvik-basket/backend/internal/user"
)

// Deps carries the services the router mounts. Payments and Carts are
// optional: a nil Payments leaves the checkout endpoints unmounted (provider
// credentials absent), a nil Carts disables the cart endpoints (no Redis).
type Deps struct {
	Users    user.Service
	Products product.Service
	Orders   order.Service
	Payments payment.Service
	Carts    *cart.Store
	Tokens   *auth.Manager
}

func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	handler.NewAuthHandler(deps.Users, deps.Tokens).RegisterRoutes(r)
	handler.NewProductHandler(deps.Products).RegisterRoutes(r)

	orderHandler := handler.NewOrderHandler(deps.Orders, deps.Carts)

	r.Group(func(r chi.Router) {
		r.Use(deps.Tokens.Middleware)

		orderHandler.RegisterRoutes(r)

		if deps.Carts != nil {
			handler.NewCartHandler(deps.Carts).RegisterRoutes(r)
		}
		if deps.Payments != nil {
			handler.NewPaymentHandler(deps.Payments).RegisterRoutes(r)
		}
	})

	// Fulfillment mutations are administrative only.
	r.Group(func(r chi.Router) {
		r.Use(deps.Tokens.Middleware)
		r.Use(deps.Tokens.RequireAdmin)

		orderHandler.RegisterAdminRoutes(r)
	})

	return r
}
