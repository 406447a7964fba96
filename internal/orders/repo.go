package orders

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-vendor-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"strconv"
	"time"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct {
	DB DB
	// TxTimeout bounds a placement transaction. The transaction runs detached
	// from the caller's context so a disconnect cannot interrupt it halfway.
	TxTimeout time.Duration
}

// PlaceOrderTx: lock product row (FOR UPDATE) -> compare stock -> decrement ->
// insert pending order -> commit. On shortfall nothing is written (rollback).
func (r *Repo) PlaceOrderTx(ctx context.Context, productID, customerID int64, qty int) (Order, error) {
	timeout := r.TxTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return Order{}, systemErr("begin placement", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stock int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, systemErr("lock product", err)
	}
	if stock < qty {
		return Order{}, insufficientStock()
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`, productID, qty); err != nil {
		return Order{}, systemErr("decrement stock", err)
	}

	o := Order{ProductID: productID, CustomerID: customerID, Quantity: qty, Status: StatusPending}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(product_id, customer_id, quantity, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, created_at, updated_at
	`, productID, customerID, qty).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return Order{}, ErrNotFound
		}
		return Order{}, systemErr("insert order", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, systemErr("commit placement", err)
	}
	return o, nil
}

const orderViewSelect = `
	SELECT o.id, o.product_id, o.customer_id, o.quantity, o.status, o.created_at, o.updated_at,
	       p.name, p.vendor_id, c.name, COALESCE(c.email, '')
	FROM orders o
	JOIN products p ON p.id = o.product_id
	JOIN users c ON c.id = o.customer_id`

func scanOrderView(row pgx.Row) (OrderView, error) {
	var v OrderView
	var status string
	err := row.Scan(&v.ID, &v.ProductID, &v.CustomerID, &v.Quantity, &status, &v.CreatedAt, &v.UpdatedAt,
		&v.Product.Name, &v.Product.VendorID, &v.Customer.Name, &v.Customer.Email)
	v.Status = Status(status)
	v.Product.ID = v.ProductID
	v.Customer.ID = v.CustomerID
	return v, err
}

func (r *Repo) GetOrder(ctx context.Context, orderID int64) (OrderView, error) {
	v, err := scanOrderView(r.DB.QueryRow(ctx, orderViewSelect+` WHERE o.id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderView{}, ErrNotFound
	}
	if err != nil {
		return OrderView{}, systemErr("get order", err)
	}
	return v, nil
}

// ListOrders pages through all orders, or only those of vendorID's products when vendorID > 0.
func (r *Repo) ListOrders(ctx context.Context, vendorID int64, page int) (Page[OrderView], error) {
	page = ClampPage(page)
	out := Page[OrderView]{Data: []OrderView{}, Page: page, PerPage: PerPage}

	where, args := "", []any{}
	if vendorID > 0 {
		where, args = ` WHERE p.vendor_id=$1`, append(args, vendorID)
	}

	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders o JOIN products p ON p.id = o.product_id`+where, args...).Scan(&out.Total)
	if err != nil {
		return out, systemErr("count orders", err)
	}

	args = append(args, PerPage, Offset(page))
	n := len(args)
	rows, err := r.DB.Query(ctx, orderViewSelect+where+` ORDER BY o.created_at DESC, o.id DESC LIMIT $`+strconv.Itoa(n-1)+` OFFSET $`+strconv.Itoa(n), args...)
	if err != nil {
		return out, systemErr("list orders", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanOrderView(rows)
		if err != nil {
			return out, systemErr("scan order", err)
		}
		out.Data = append(out.Data, v)
	}
	if err := rows.Err(); err != nil {
		return out, systemErr("list orders", err)
	}
	return out, nil
}

func (r *Repo) UpdateOrderStatus(ctx context.Context, orderID int64, status Status) (Order, error) {
	var o Order
	var s string
	err := r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
		RETURNING id, product_id, customer_id, quantity, status, created_at, updated_at
	`, orderID, string(status)).Scan(&o.ID, &o.ProductID, &o.CustomerID, &o.Quantity, &s, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, systemErr("update order status", err)
	}
	o.Status = Status(s)
	return o, nil
}

// NotificationDetails reads the order with its product (deleted or not) and vendor.
func (r *Repo) NotificationDetails(ctx context.Context, orderID int64) (NotificationDetails, error) {
	var d NotificationDetails
	err := r.DB.QueryRow(ctx, `
		SELECT o.id, o.quantity, p.id, p.name, p.vendor_id, COALESCE(v.email, '')
		FROM orders o
		JOIN products p ON p.id = o.product_id
		LEFT JOIN users v ON v.id = p.vendor_id
		WHERE o.id=$1
	`, orderID).Scan(&d.OrderID, &d.Quantity, &d.ProductID, &d.ProductName, &d.VendorID, &d.VendorEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return NotificationDetails{}, ErrNotFound
	}
	if err != nil {
		return NotificationDetails{}, systemErr("load notification details", err)
	}
	return d, nil
}
