package database

import (
	"context"

	"github.com/google/uuid"
)

const productRequestColumns = `id, owner_id, handle, desired_name, desired_size, notes, status, created_at, notified_at`

func scanProductRequest(row rowScanner) (ProductRequest, error) {
	var i ProductRequest
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Handle,
		&i.DesiredName,
		&i.DesiredSize,
		&i.Notes,
		&i.Status,
		&i.CreatedAt,
		&i.NotifiedAt,
	)
	return i, err
}

func (q *Queries) queryProductRequests(ctx context.Context, sql string, args ...interface{}) ([]ProductRequest, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProductRequest{}
	for rows.Next() {
		i, err := scanProductRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createProductRequest = `-- name: CreateProductRequest :one
INSERT INTO product_requests (owner_id, handle, desired_name, desired_size, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + productRequestColumns

type CreateProductRequestParams struct {
	OwnerID     int64  `json:"owner_id"`
	Handle      string `json:"handle"`
	DesiredName string `json:"desired_name"`
	DesiredSize string `json:"desired_size"`
	Notes       string `json:"notes"`
}

func (q *Queries) CreateProductRequest(ctx context.Context, arg CreateProductRequestParams) (ProductRequest, error) {
	return scanProductRequest(q.db.QueryRow(ctx, createProductRequest,
		arg.OwnerID,
		arg.Handle,
		arg.DesiredName,
		arg.DesiredSize,
		arg.Notes,
	))
}

const getProductRequest = `-- name: GetProductRequest :one
SELECT ` + productRequestColumns + ` FROM product_requests WHERE id = $1`

func (q *Queries) GetProductRequest(ctx context.Context, id uuid.UUID) (ProductRequest, error) {
	return scanProductRequest(q.db.QueryRow(ctx, getProductRequest, id))
}

const listProductRequestsByStatus = `-- name: ListProductRequestsByStatus :many
SELECT ` + productRequestColumns + ` FROM product_requests WHERE status = $1 ORDER BY created_at DESC LIMIT $2`

type ListProductRequestsByStatusParams struct {
	Status string `json:"status"`
	Limit  int32  `json:"limit"`
}

func (q *Queries) ListProductRequestsByStatus(ctx context.Context, arg ListProductRequestsByStatusParams) ([]ProductRequest, error) {
	return q.queryProductRequests(ctx, listProductRequestsByStatus, arg.Status, arg.Limit)
}

const setProductRequestStatus = `-- name: SetProductRequestStatus :one
UPDATE product_requests SET status = $2 WHERE id = $1
RETURNING ` + productRequestColumns

type SetProductRequestStatusParams struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

func (q *Queries) SetProductRequestStatus(ctx context.Context, arg SetProductRequestStatusParams) (ProductRequest, error) {
	return scanProductRequest(q.db.QueryRow(ctx, setProductRequestStatus, arg.ID, arg.Status))
}

const listUnnotifiedProductRequests = `-- name: ListUnnotifiedProductRequests :many
SELECT ` + productRequestColumns + ` FROM product_requests
WHERE status = 'NEW' AND notified_at IS NULL
ORDER BY created_at ASC
LIMIT $1`

func (q *Queries) ListUnnotifiedProductRequests(ctx context.Context, limit int32) ([]ProductRequest, error) {
	return q.queryProductRequests(ctx, listUnnotifiedProductRequests, limit)
}

const claimProductRequestNotification = `-- name: ClaimProductRequestNotification :one
UPDATE product_requests SET notified_at = now()
WHERE id = $1 AND notified_at IS NULL
RETURNING ` + productRequestColumns

func (q *Queries) ClaimProductRequestNotification(ctx context.Context, id uuid.UUID) (ProductRequest, error) {
	return scanProductRequest(q.db.QueryRow(ctx, claimProductRequestNotification, id))
}
