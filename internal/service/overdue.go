package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/platanos-shop/storefront/internal/database"
)

const overdueBatch = 20

// OverdueStore defines the DB methods the overdue sweep needs.
type OverdueStore interface {
	ListOverdueOrders(ctx context.Context, arg database.ListOverdueOrdersParams) ([]database.Order, error)
	ClaimOverdueAlert(ctx context.Context, id uuid.UUID) (database.Order, error)
}

type OverdueNotifier interface {
	NotifyOverdue(ctx context.Context, o database.Order)
}

// OverdueMonitor flags paid orders that have been pending for too long.
type OverdueMonitor struct {
	store     OverdueStore
	notifier  OverdueNotifier
	threshold time.Duration
	now       func() time.Time
}

// NewOverdueMonitor alerts orders left pending longer than threshold.
func NewOverdueMonitor(store OverdueStore, notifier OverdueNotifier, threshold time.Duration) *OverdueMonitor {
	return &OverdueMonitor{store: store, notifier: notifier, threshold: threshold, now: time.Now}
}

// Sweep alerts every eligible order once and returns how many alerts were
// sent. The alert marker is claimed before sending, so two monitors never
// alert the same order.
func (m *OverdueMonitor) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	orders, err := m.store.ListOverdueOrders(ctx, database.ListOverdueOrdersParams{
		CreatedBefore: now.Add(-m.threshold),
		Now:           now,
		Limit:         overdueBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list overdue orders: %w", err)
	}

	sent := 0
	for _, o := range orders {
		claimed, err := m.store.ClaimOverdueAlert(ctx, o.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			log.Printf("ERROR: claim overdue alert %s: %v", o.ID, err)
			continue
		}
		m.notifier.NotifyOverdue(ctx, claimed)
		sent++
	}
	return sent, nil
}
