package database

import (
	"context"
)

const getCart = `-- name: GetCart :one
SELECT owner_id, items, updated_at FROM carts WHERE owner_id = $1`

func (q *Queries) GetCart(ctx context.Context, ownerID int64) (Cart, error) {
	row := q.db.QueryRow(ctx, getCart, ownerID)
	var i Cart
	err := row.Scan(&i.OwnerID, &i.Items, &i.UpdatedAt)
	return i, err
}

const getCartForUpdate = `-- name: GetCartForUpdate :one
SELECT owner_id, items, updated_at FROM carts WHERE owner_id = $1 FOR UPDATE`

// GetCartForUpdate serializes concurrent checkouts of the same customer.
func (q *Queries) GetCartForUpdate(ctx context.Context, ownerID int64) (Cart, error) {
	row := q.db.QueryRow(ctx, getCartForUpdate, ownerID)
	var i Cart
	err := row.Scan(&i.OwnerID, &i.Items, &i.UpdatedAt)
	return i, err
}

const upsertCart = `-- name: UpsertCart :one
INSERT INTO carts (owner_id, items, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (owner_id) DO UPDATE SET items = EXCLUDED.items, updated_at = now()
RETURNING owner_id, items, updated_at`

type UpsertCartParams struct {
	OwnerID int64  `json:"owner_id"`
	Items   []byte `json:"items"`
}

func (q *Queries) UpsertCart(ctx context.Context, arg UpsertCartParams) (Cart, error) {
	row := q.db.QueryRow(ctx, upsertCart, arg.OwnerID, arg.Items)
	var i Cart
	err := row.Scan(&i.OwnerID, &i.Items, &i.UpdatedAt)
	return i, err
}
