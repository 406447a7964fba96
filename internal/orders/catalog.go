package orders

import (
	"context"
	"github.com/ariefcatur/go-vendor-orders/internal/auth"
	"go.uber.org/zap"
)

type ProductStore interface {
	ListProducts(ctx context.Context, f ProductFilter) (Page[Product], error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, vendorID int64, in ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error)
	SoftDeleteProduct(ctx context.Context, id int64) error
	PopularProducts(ctx context.Context, limit int) ([]PopularProduct, error)
}

// PopularCache stores the popular-products listing.
type PopularCache interface {
	PopularInvalidator
	GetPopular(ctx context.Context, dst any) (bool, error)
	SetPopular(ctx context.Context, v any) error
}

const PopularLimit = 10

type Catalog struct {
	Store ProductStore
	Cache PopularCache
	Log   *zap.Logger
}

func (c *Catalog) ListProducts(ctx context.Context, f ProductFilter) (Page[Product], error) {
	return c.Store.ListProducts(ctx, f)
}

func (c *Catalog) GetProduct(ctx context.Context, id int64) (Product, error) {
	return c.Store.GetProduct(ctx, id)
}

func (c *Catalog) CreateProduct(ctx context.Context, caller auth.Identity, in ProductInput) (Product, error) {
	if !caller.Is(auth.RoleVendor, auth.RoleAdmin) {
		return Product{}, ErrForbidden
	}
	if in.Stock < 0 {
		return Product{}, &ValidationError{Field: "stock", Message: "The stock must be at least 0."}
	}
	if in.Price.IsNegative() {
		return Product{}, &ValidationError{Field: "price", Message: "The price must be at least 0."}
	}
	p, err := c.Store.CreateProduct(ctx, caller.UserID, in)
	if err != nil {
		return Product{}, err
	}
	c.invalidate(ctx, p.ID)
	return p, nil
}

// authorize loads the live product and checks the caller owns it (admins override).
func (c *Catalog) authorize(ctx context.Context, caller auth.Identity, id int64) error {
	p, err := c.Store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if !caller.Is(auth.RoleAdmin) && p.VendorID != caller.UserID {
		return ErrForbidden
	}
	return nil
}

func (c *Catalog) UpdateProduct(ctx context.Context, caller auth.Identity, id int64, patch ProductPatch) (Product, error) {
	if patch.Stock != nil && *patch.Stock < 0 {
		return Product{}, &ValidationError{Field: "stock", Message: "The stock must be at least 0."}
	}
	if patch.Price != nil && patch.Price.IsNegative() {
		return Product{}, &ValidationError{Field: "price", Message: "The price must be at least 0."}
	}
	if err := c.authorize(ctx, caller, id); err != nil {
		return Product{}, err
	}
	if patch.Empty() {
		return c.Store.GetProduct(ctx, id)
	}
	p, err := c.Store.UpdateProduct(ctx, id, patch)
	if err != nil {
		return Product{}, err
	}
	c.invalidate(ctx, id)
	return p, nil
}

func (c *Catalog) DeleteProduct(ctx context.Context, caller auth.Identity, id int64) error {
	if err := c.authorize(ctx, caller, id); err != nil {
		return err
	}
	if err := c.Store.SoftDeleteProduct(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// PopularProducts serves from cache, recomputing on a miss. A broken cache
// degrades to a direct query.
func (c *Catalog) PopularProducts(ctx context.Context) ([]PopularProduct, error) {
	var cached []PopularProduct
	hit, err := c.Cache.GetPopular(ctx, &cached)
	if err != nil {
		c.Log.Warn("read popular cache", zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	out, err := c.Store.PopularProducts(ctx, PopularLimit)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.SetPopular(ctx, out); err != nil {
		c.Log.Warn("write popular cache", zap.Error(err))
	}
	return out, nil
}

func (c *Catalog) invalidate(ctx context.Context, productID int64) {
	if err := c.Cache.InvalidatePopular(context.WithoutCancel(ctx)); err != nil {
		c.Log.Warn("invalidate popular products", zap.Int64("product_id", productID), zap.Error(err))
	}
}
