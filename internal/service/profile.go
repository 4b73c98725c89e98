package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/platanos-shop/storefront/internal/database"
)

// Profile fields checkout requires.
const (
	FieldName    = "name"
	FieldAddress = "address"
)

// ProfileStore defines the DB methods needed for customer profiles.
type ProfileStore interface {
	GetCustomerProfile(ctx context.Context, ownerID int64) (database.CustomerProfile, error)
	UpsertCustomerProfile(ctx context.Context, arg database.UpsertCustomerProfileParams) (database.CustomerProfile, error)
}

// ProfileService reads and upserts customer profiles. Last writer wins.
type ProfileService struct {
	store ProfileStore
}

func NewProfileService(store ProfileStore) *ProfileService {
	return &ProfileService{store: store}
}

// Get returns the stored profile. A missing profile is returned as a zero
// value with only OwnerID set.
func (s *ProfileService) Get(ctx context.Context, ownerID int64) (database.CustomerProfile, error) {
	p, err := s.store.GetCustomerProfile(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.CustomerProfile{OwnerID: ownerID}, nil
		}
		return database.CustomerProfile{}, fmt.Errorf("get profile %d: %w", ownerID, err)
	}
	return p, nil
}

// ProfileUpdate holds the fields to upsert. Empty fields keep the stored value.
type ProfileUpdate struct {
	OwnerID         int64
	DisplayName     string
	ShippingAddress string
	Handle          string
}

// Update upserts the profile.
func (s *ProfileService) Update(ctx context.Context, u ProfileUpdate) (database.CustomerProfile, error) {
	p, err := s.store.UpsertCustomerProfile(ctx, database.UpsertCustomerProfileParams{
		OwnerID:         u.OwnerID,
		DisplayName:     strings.TrimSpace(u.DisplayName),
		ShippingAddress: strings.TrimSpace(u.ShippingAddress),
		LastKnownHandle: u.Handle,
	})
	if err != nil {
		return database.CustomerProfile{}, fmt.Errorf("upsert profile %d: %w", u.OwnerID, err)
	}
	return p, nil
}

// MissingProfileFields lists the fields checkout still needs, in the order
// they should be asked for.
func MissingProfileFields(p database.CustomerProfile) []string {
	var missing []string
	if strings.TrimSpace(p.DisplayName) == "" {
		missing = append(missing, FieldName)
	}
	if strings.TrimSpace(p.ShippingAddress) == "" {
		missing = append(missing, FieldAddress)
	}
	return missing
}
