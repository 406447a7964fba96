package orders

import (
	"context"
	"github.com/ariefcatur/go-vendor-orders/internal/auth"
	"go.uber.org/zap"
)

// Store is the transactional order store; *Repo implements it.
type Store interface {
	PlaceOrderTx(ctx context.Context, productID, customerID int64, qty int) (Order, error)
	GetOrder(ctx context.Context, orderID int64) (OrderView, error)
	ListOrders(ctx context.Context, vendorID int64, page int) (Page[OrderView], error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status Status) (Order, error)
}

// NotificationQueue hands an order to the durable queue for vendor notification.
type NotificationQueue interface {
	EnqueueOrderPlaced(ctx context.Context, orderID int64) error
}

// PopularInvalidator evicts the cached popular-products listing.
type PopularInvalidator interface {
	InvalidatePopular(ctx context.Context) error
}

type Service struct {
	Store Store
	Queue NotificationQueue
	Cache PopularInvalidator
	Log   *zap.Logger
}

// PlaceOrder runs the placement transaction and, only once it has committed,
// evicts the popular cache and enqueues the vendor notification. Failures of
// those two steps are logged and never turn a committed order into an error.
func (s *Service) PlaceOrder(ctx context.Context, caller auth.Identity, productID int64, qty int) (Order, error) {
	if !caller.Is(auth.RoleCustomer) {
		return Order{}, ErrForbidden
	}
	if qty < 1 {
		return Order{}, &ValidationError{Field: "quantity", Message: "The quantity must be at least 1.", Err: ErrInvalidQuantity}
	}

	o, err := s.Store.PlaceOrderTx(ctx, productID, caller.UserID, qty)
	if err != nil {
		return Order{}, err
	}

	// post-commit
	ctx = context.WithoutCancel(ctx)
	if err := s.Cache.InvalidatePopular(ctx); err != nil {
		s.Log.Warn("invalidate popular products", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	if err := s.Queue.EnqueueOrderPlaced(ctx, o.ID); err != nil {
		s.Log.Error("enqueue order notification",
			zap.Int64("order_id", o.ID),
			zap.Int64("product_id", o.ProductID),
			zap.Error(err),
		)
	}
	return o, nil
}

// canManage: admins manage every order, vendors only orders of their own products.
func canManage(caller auth.Identity, vendorID int64) bool {
	return caller.Is(auth.RoleAdmin) || (caller.Is(auth.RoleVendor) && caller.UserID == vendorID)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, caller auth.Identity, orderID int64, status Status) (Order, error) {
	if !caller.Is(auth.RoleAdmin, auth.RoleVendor) {
		return Order{}, ErrForbidden
	}
	if !status.Valid() {
		return Order{}, &ValidationError{Field: "status", Message: "The selected status is invalid.", Err: ErrInvalidStatus}
	}
	v, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !canManage(caller, v.Product.VendorID) {
		return Order{}, ErrForbidden
	}
	return s.Store.UpdateOrderStatus(ctx, orderID, status)
}

func (s *Service) GetOrder(ctx context.Context, caller auth.Identity, orderID int64) (OrderView, error) {
	v, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if !canManage(caller, v.Product.VendorID) {
		return OrderView{}, ErrForbidden
	}
	return v, nil
}

func (s *Service) ListOrders(ctx context.Context, caller auth.Identity, page int) (Page[OrderView], error) {
	switch caller.Role {
	case auth.RoleAdmin:
		return s.Store.ListOrders(ctx, 0, page)
	case auth.RoleVendor:
		return s.Store.ListOrders(ctx, caller.UserID, page)
	}
	return Page[OrderView]{}, ErrForbidden
}
