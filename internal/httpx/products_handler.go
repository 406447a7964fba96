package httpx

import (
	"context"
	"github.com/ariefcatur/go-vendor-orders/internal/auth"
	"github.com/ariefcatur/go-vendor-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

type CatalogService interface {
	ListProducts(ctx context.Context, f orders.ProductFilter) (orders.Page[orders.Product], error)
	GetProduct(ctx context.Context, id int64) (orders.Product, error)
	PopularProducts(ctx context.Context) ([]orders.PopularProduct, error)
	CreateProduct(ctx context.Context, caller auth.Identity, in orders.ProductInput) (orders.Product, error)
	UpdateProduct(ctx context.Context, caller auth.Identity, id int64, patch orders.ProductPatch) (orders.Product, error)
	DeleteProduct(ctx context.Context, caller auth.Identity, id int64) error
}

type ProductsHandler struct {
	Catalog CatalogService
	Authn   func(http.Handler) http.Handler
	Log     *zap.Logger
}

type CreateProductReq struct {
	Name        string           `json:"name" validate:"required,max=150"`
	Description string           `json:"description" validate:"max=2000"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Stock       *int             `json:"stock" validate:"required,gte=0"`
}

type UpdateProductReq struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=150"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/popular", h.popularProducts)
		r.Get("/{id}", h.getProduct)
		r.Group(func(r chi.Router) {
			r.Use(h.Authn, auth.RequireRole(auth.RoleVendor, auth.RoleAdmin))
			r.Post("/", h.createProduct)
			r.Patch("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})
	})
}

// productFilter reads the listing query; malformed numbers are reported
// against their parameter.
func productFilter(r *http.Request) (orders.ProductFilter, *orders.ValidationError) {
	q := r.URL.Query()
	f := orders.ProductFilter{
		Q:     q.Get("q"),
		Sort:  q.Get("sort"),
		Order: q.Get("order"),
		Page:  pageParam(r),
	}
	if s := q.Get("vendor_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return f, &orders.ValidationError{Field: "vendor_id", Message: "The vendor_id must be an integer."}
		}
		f.VendorID = id
	}
	for _, p := range []struct {
		name string
		dst  **decimal.Decimal
	}{{"min_price", &f.MinPrice}, {"max_price", &f.MaxPrice}} {
		s := q.Get(p.name)
		if s == "" {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return f, &orders.ValidationError{Field: p.name, Message: "The " + p.name + " must be a number."}
		}
		*p.dst = &d
	}
	return f, nil
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, verr := productFilter(r)
	if verr != nil {
		writeError(w, h.Log, verr)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx, f)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) popularProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.PopularProducts(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ps})
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeNotFound(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.GetProduct(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.CreateProduct(ctx, caller(r), orders.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Stock:       *req.Stock,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeNotFound(w)
		return
	}
	var req UpdateProductReq
	if !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Catalog.UpdateProduct(ctx, caller(r), id, orders.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeNotFound(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Catalog.DeleteProduct(ctx, caller(r), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
