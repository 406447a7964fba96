package orders

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"strconv"
	"strings"
)

type ProductRepo struct{ DB DB }

type ProductFilter struct {
	Q        string
	VendorID int64
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string // created_at | price | name | stock
	Order    string // asc | desc
	Page     int
}

type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// ProductPatch holds the fields to change; nil means keep.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Stock == nil
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"price":      "price",
	"name":       "name",
	"stock":      "stock",
}

const productColumns = `id, name, description, price, stock, vendor_id, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.VendorID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// likeEscaper makes user text match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// productWhere builds the filter clause; sort/order fall back to
// created_at desc when not whitelisted.
func productWhere(f ProductFilter) (where string, args []any, orderBy string) {
	conds := []string{"deleted_at IS NULL"}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		add(`(name ILIKE ? ESCAPE '\' OR description ILIKE ? ESCAPE '\')`, "%"+likeEscaper.Replace(q)+"%")
	}
	if f.VendorID > 0 {
		add("vendor_id = ?", f.VendorID)
	}
	if f.MinPrice != nil {
		add("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= ?", *f.MaxPrice)
	}

	col, ok := sortColumns[f.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		dir = "ASC"
	}
	return " WHERE " + strings.Join(conds, " AND "), args, " ORDER BY " + col + " " + dir + ", id " + dir
}

func (r *ProductRepo) ListProducts(ctx context.Context, f ProductFilter) (Page[Product], error) {
	page := ClampPage(f.Page)
	out := Page[Product]{Data: []Product{}, Page: page, PerPage: PerPage}

	where, args, orderBy := productWhere(f)
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&out.Total); err != nil {
		return out, systemErr("count products", err)
	}

	args = append(args, PerPage, Offset(page))
	n := len(args)
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products`+where+orderBy+
		` LIMIT $`+strconv.Itoa(n-1)+` OFFSET $`+strconv.Itoa(n), args...)
	if err != nil {
		return out, systemErr("list products", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return out, systemErr("scan product", err)
		}
		out.Data = append(out.Data, p)
	}
	if err := rows.Err(); err != nil {
		return out, systemErr("list products", err)
	}
	return out, nil
}

func (r *ProductRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND deleted_at IS NULL`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, systemErr("get product", err)
	}
	return p, nil
}

func (r *ProductRepo) CreateProduct(ctx context.Context, vendorID int64, in ProductInput) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `
		INSERT INTO products(name, description, price, stock, vendor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+productColumns, in.Name, in.Description, in.Price, in.Stock, vendorID))
	if err != nil {
		return Product{}, systemErr("create product", err)
	}
	return p, nil
}

func (r *ProductRepo) UpdateProduct(ctx context.Context, id int64, patch ProductPatch) (Product, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	if patch.Stock != nil {
		set("stock", *patch.Stock)
	}

	p, err := scanProduct(r.DB.QueryRow(ctx, `UPDATE products SET `+strings.Join(sets, ", ")+
		` WHERE id=$1 AND deleted_at IS NULL RETURNING `+productColumns, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, systemErr("update product", err)
	}
	return p, nil
}

// SoftDeleteProduct stamps deleted_at; orders keep referencing the row.
func (r *ProductRepo) SoftDeleteProduct(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET deleted_at = now(), updated_at = now() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return systemErr("delete product", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

type PopularProduct struct {
	Product
	OrdersCount int `json:"orders_count"`
}

func (r *ProductRepo) PopularProducts(ctx context.Context, limit int) ([]PopularProduct, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.name, p.description, p.price, p.stock, p.vendor_id, p.created_at, p.updated_at,
		       COUNT(o.id) AS orders_count
		FROM products p
		LEFT JOIN orders o ON o.product_id = p.id
		WHERE p.deleted_at IS NULL
		GROUP BY p.id
		ORDER BY orders_count DESC, p.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, systemErr("popular products", err)
	}
	defer rows.Close()

	out := []PopularProduct{}
	for rows.Next() {
		var pp PopularProduct
		if err := rows.Scan(&pp.ID, &pp.Name, &pp.Description, &pp.Price, &pp.Stock, &pp.VendorID,
			&pp.CreatedAt, &pp.UpdatedAt, &pp.OrdersCount); err != nil {
			return nil, systemErr("scan popular product", err)
		}
		out = append(out, pp)
	}
	if err := rows.Err(); err != nil {
		return nil, systemErr("popular products", err)
	}
	return out, nil
}
