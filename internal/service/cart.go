package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/platanos-shop/storefront/internal/database"
)

// MaxLineQuantity caps a single cart line.
const MaxLineQuantity = 99

// CartStore defines the DB methods needed to persist carts.
// Satisfied by *database.Queries.
type CartStore interface {
	GetCart(ctx context.Context, ownerID int64) (database.Cart, error)
	UpsertCart(ctx context.Context, arg database.UpsertCartParams) (database.Cart, error)
}

// CartService keeps carts in memory and writes a full snapshot to the store
// on every mutation. A cold cache is filled from the snapshot on first use.
type CartService struct {
	store CartStore

	mu    sync.Mutex
	carts map[int64][]database.LineItem
}

// NewCartService creates a new CartService.
func NewCartService(store CartStore) *CartService {
	return &CartService{store: store, carts: make(map[int64][]database.LineItem)}
}

// load returns the cached cart, restoring it from the snapshot if needed.
// Caller must hold s.mu.
func (s *CartService) load(ctx context.Context, ownerID int64) ([]database.LineItem, error) {
	if items, ok := s.carts[ownerID]; ok {
		return items, nil
	}

	row, err := s.store.GetCart(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.carts[ownerID] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("restore cart %d: %w", ownerID, err)
	}

	items, err := database.DecodeLineItems(row.Items)
	if err != nil {
		return nil, fmt.Errorf("restore cart %d: %w", ownerID, err)
	}
	s.carts[ownerID] = items
	return items, nil
}

// save persists items and only then swaps the cached copy. Caller must hold s.mu.
func (s *CartService) save(ctx context.Context, ownerID int64, items []database.LineItem) error {
	raw, err := database.EncodeLineItems(items)
	if err != nil {
		return err
	}
	if _, err := s.store.UpsertCart(ctx, database.UpsertCartParams{OwnerID: ownerID, Items: raw}); err != nil {
		return fmt.Errorf("persist cart %d: %w", ownerID, err)
	}
	s.carts[ownerID] = items
	return nil
}

// Items returns a copy of the customer's cart.
func (s *CartService) Items(ctx context.Context, ownerID int64) ([]database.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return cloneItems(items), nil
}

// Add appends a line. Identical lines are not merged.
func (s *CartService) Add(ctx context.Context, ownerID int64, item database.LineItem) ([]database.LineItem, error) {
	if item.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if item.UnitPriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if item.Quantity > MaxLineQuantity {
		item.Quantity = MaxLineQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	next := append(cloneItems(items), item)
	if err := s.save(ctx, ownerID, next); err != nil {
		return nil, err
	}
	return cloneItems(next), nil
}

// SetQuantity changes the quantity of the line at index. Zero removes it.
func (s *CartService) SetQuantity(ctx context.Context, ownerID int64, index int, qty int) ([]database.LineItem, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	if qty > MaxLineQuantity {
		qty = MaxLineQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(items) {
		return nil, ErrInvalidLineIndex
	}

	next := cloneItems(items)
	if qty == 0 {
		next = append(next[:index], next[index+1:]...)
	} else {
		next[index].Quantity = int32(qty)
	}
	if err := s.save(ctx, ownerID, next); err != nil {
		return nil, err
	}
	return cloneItems(next), nil
}

// Clear empties the cart and persists the empty snapshot.
func (s *CartService) Clear(ctx context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, ownerID, nil)
}

// Forget drops the cached copy. Used after checkout emptied the persisted
// snapshot inside its own transaction.
func (s *CartService) Forget(ownerID int64) {
	s.mu.Lock()
	delete(s.carts, ownerID)
	s.mu.Unlock()
}

// CartTotal sums unit price times quantity over items.
func CartTotal(items []database.LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}

// CartCost sums unit cost times quantity over items.
func CartCost(items []database.LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.UnitCostCents * int64(it.Quantity)
	}
	return total
}

func cloneItems(items []database.LineItem) []database.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]database.LineItem, len(items))
	copy(out, items)
	return out
}
