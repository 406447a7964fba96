package auth

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleVendor   Role = "vendor"
	RoleCustomer Role = "customer"
)

// Identity is the caller capability handed to every service operation.
type Identity struct {
	UserID int64
	Role   Role
}

func (i Identity) Is(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

var ErrUnknownUser = errors.New("unknown user")

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

type Resolver interface {
	ResolveIdentity(ctx context.Context, userID int64) (Identity, error)
}

type UserRepo struct{ DB *pgxpool.Pool }

func (r *UserRepo) ResolveIdentity(ctx context.Context, userID int64) (Identity, error) {
	var role string
	err := r.DB.QueryRow(ctx, `SELECT role FROM users WHERE id=$1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrUnknownUser
	}
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID, Role: Role(role)}, nil
}
