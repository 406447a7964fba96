package httpx

import (
	"context"
	"github.com/ariefcatur/go-vendor-orders/internal/auth"
	"github.com/ariefcatur/go-vendor-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, caller auth.Identity, productID int64, qty int) (orders.Order, error)
	GetOrder(ctx context.Context, caller auth.Identity, orderID int64) (orders.OrderView, error)
	ListOrders(ctx context.Context, caller auth.Identity, page int) (orders.Page[orders.OrderView], error)
	UpdateOrderStatus(ctx context.Context, caller auth.Identity, orderID int64, status orders.Status) (orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderService
	Authn  func(http.Handler) http.Handler
	Log    *zap.Logger
}

type PlaceOrderReq struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  *int  `json:"quantity" validate:"required"`
}

type UpdateStatusReq struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(h.Authn)
		r.With(auth.RequireRole(auth.RoleCustomer)).Post("/", h.placeOrder)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleVendor, auth.RoleAdmin))
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Patch("/{id}/status", h.updateStatus)
		})
	})
}

// caller is set by Authn on every route registered here.
func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if !bind(w, r, &req) {
		return
	}

	// the placement transaction detaches from this context; the trace id rides along
	ctx := orders.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	o, err := h.Orders.PlaceOrder(ctx, caller(r), req.ProductID, *req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	page, err := h.Orders.ListOrders(ctx, caller(r), pageParam(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeNotFound(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Orders.GetOrder(ctx, caller(r), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeNotFound(w)
		return
	}
	var req UpdateStatusReq
	if !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateOrderStatus(ctx, caller(r), id, orders.Status(req.Status))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
