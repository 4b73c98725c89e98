package database

import (
	"context"
)

const getCustomerProfile = `-- name: GetCustomerProfile :one
SELECT owner_id, display_name, shipping_address, last_known_handle, updated_at
FROM customer_profiles WHERE owner_id = $1`

func (q *Queries) GetCustomerProfile(ctx context.Context, ownerID int64) (CustomerProfile, error) {
	row := q.db.QueryRow(ctx, getCustomerProfile, ownerID)
	var i CustomerProfile
	err := row.Scan(&i.OwnerID, &i.DisplayName, &i.ShippingAddress, &i.LastKnownHandle, &i.UpdatedAt)
	return i, err
}

// Empty strings keep the stored value, so a partial edit (name only,
// address only) does not wipe the other field.
const upsertCustomerProfile = `-- name: UpsertCustomerProfile :one
INSERT INTO customer_profiles (owner_id, display_name, shipping_address, last_known_handle, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (owner_id) DO UPDATE SET
    display_name      = COALESCE(NULLIF(EXCLUDED.display_name, ''), customer_profiles.display_name),
    shipping_address  = COALESCE(NULLIF(EXCLUDED.shipping_address, ''), customer_profiles.shipping_address),
    last_known_handle = COALESCE(NULLIF(EXCLUDED.last_known_handle, ''), customer_profiles.last_known_handle),
    updated_at        = now()
RETURNING owner_id, display_name, shipping_address, last_known_handle, updated_at`

type UpsertCustomerProfileParams struct {
	OwnerID         int64  `json:"owner_id"`
	DisplayName     string `json:"display_name"`
	ShippingAddress string `json:"shipping_address"`
	LastKnownHandle string `json:"last_known_handle"`
}

func (q *Queries) UpsertCustomerProfile(ctx context.Context, arg UpsertCustomerProfileParams) (CustomerProfile, error) {
	row := q.db.QueryRow(ctx, upsertCustomerProfile,
		arg.OwnerID,
		arg.DisplayName,
		arg.ShippingAddress,
		arg.LastKnownHandle,
	)
	var i CustomerProfile
	err := row.Scan(&i.OwnerID, &i.DisplayName, &i.ShippingAddress, &i.LastKnownHandle, &i.UpdatedAt)
	return i, err
}
