package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
)

const requestNotifyBatch = 20

// RequestStore defines the DB methods for product requests.
type RequestStore interface {
	CreateProductRequest(ctx context.Context, arg database.CreateProductRequestParams) (database.ProductRequest, error)
	GetProductRequest(ctx context.Context, id uuid.UUID) (database.ProductRequest, error)
	ListProductRequestsByStatus(ctx context.Context, arg database.ListProductRequestsByStatusParams) ([]database.ProductRequest, error)
	SetProductRequestStatus(ctx context.Context, arg database.SetProductRequestStatusParams) (database.ProductRequest, error)
	ListUnnotifiedProductRequests(ctx context.Context, limit int32) ([]database.ProductRequest, error)
	ClaimProductRequestNotification(ctx context.Context, id uuid.UUID) (database.ProductRequest, error)
}

type RequestNotifier interface {
	NotifyProductRequest(ctx context.Context, r database.ProductRequest)
}

// NewRequest is a customer asking for a product the catalog does not have.
type NewRequest struct {
	OwnerID     int64
	Handle      string
	DesiredName string
	DesiredSize string
	Notes       string
}

// RequestService records and triages product requests.
type RequestService struct {
	store    RequestStore
	notifier RequestNotifier
}

func NewRequestService(store RequestStore, notifier RequestNotifier) *RequestService {
	return &RequestService{store: store, notifier: notifier}
}

func (s *RequestService) Create(ctx context.Context, req NewRequest) (database.ProductRequest, error) {
	name := strings.TrimSpace(req.DesiredName)
	if name == "" {
		return database.ProductRequest{}, ErrRequestNameRequired
	}
	r, err := s.store.CreateProductRequest(ctx, database.CreateProductRequestParams{
		OwnerID:     req.OwnerID,
		Handle:      req.Handle,
		DesiredName: name,
		DesiredSize: strings.TrimSpace(req.DesiredSize),
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return database.ProductRequest{}, fmt.Errorf("create product request: %w", err)
	}
	return r, nil
}

func (s *RequestService) List(ctx context.Context, status string, limit int32) ([]database.ProductRequest, error) {
	if !isRequestStatus(status) {
		return nil, ErrInvalidRequestStatus
	}
	rows, err := s.store.ListProductRequestsByStatus(ctx, database.ListProductRequestsByStatusParams{
		Status: status,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list product requests: %w", err)
	}
	return rows, nil
}

// SetStatus applies an admin triage decision.
func (s *RequestService) SetStatus(ctx context.Context, id uuid.UUID, status string) (database.ProductRequest, error) {
	if !isRequestStatus(status) || status == enum.RequestStatusNew {
		return database.ProductRequest{}, ErrInvalidRequestStatus
	}
	r, err := s.store.SetProductRequestStatus(ctx, database.SetProductRequestStatusParams{ID: id, Status: status})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.ProductRequest{}, ErrRequestNotFound
		}
		return database.ProductRequest{}, fmt.Errorf("set request status: %w", err)
	}
	return r, nil
}

// SweepNotifications notifies operators about new requests, each at most once.
func (s *RequestService) SweepNotifications(ctx context.Context) (int, error) {
	rows, err := s.store.ListUnnotifiedProductRequests(ctx, requestNotifyBatch)
	if err != nil {
		return 0, fmt.Errorf("list unnotified requests: %w", err)
	}
	sent := 0
	for _, r := range rows {
		claimed, err := s.store.ClaimProductRequestNotification(ctx, r.ID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				log.Printf("ERROR: claim request notification %s: %v", r.ID, err)
			}
			continue
		}
		s.notifier.NotifyProductRequest(ctx, claimed)
		sent++
	}
	return sent, nil
}

func isRequestStatus(s string) bool {
	switch s {
	case enum.RequestStatusNew, enum.RequestStatusApproved, enum.RequestStatusRejected, enum.RequestStatusDone:
		return true
	}
	return false
}
