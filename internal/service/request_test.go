package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/platanos-shop/storefront/internal/database"
	"github.com/platanos-shop/storefront/internal/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRequestStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]database.ProductRequest
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{rows: map[uuid.UUID]database.ProductRequest{}}
}

func (m *memRequestStore) CreateProductRequest(ctx context.Context, arg database.CreateProductRequestParams) (database.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := database.ProductRequest{
		ID:          uuid.New(),
		OwnerID:     arg.OwnerID,
		Handle:      arg.Handle,
		DesiredName: arg.DesiredName,
		DesiredSize: arg.DesiredSize,
		Notes:       arg.Notes,
		Status:      enum.RequestStatusNew,
		CreatedAt:   time.Now(),
	}
	m.rows[r.ID] = r
	return r, nil
}

func (m *memRequestStore) GetProductRequest(ctx context.Context, id uuid.UUID) (database.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return database.ProductRequest{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memRequestStore) ListProductRequestsByStatus(ctx context.Context, arg database.ListProductRequestsByStatusParams) ([]database.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.ProductRequest
	for _, r := range m.rows {
		if r.Status == arg.Status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if arg.Limit > 0 && int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (m *memRequestStore) SetProductRequestStatus(ctx context.Context, arg database.SetProductRequestStatusParams) (database.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[arg.ID]
	if !ok {
		return database.ProductRequest{}, pgx.ErrNoRows
	}
	r.Status = arg.Status
	m.rows[r.ID] = r
	return r, nil
}

func (m *memRequestStore) ListUnnotifiedProductRequests(ctx context.Context, limit int32) ([]database.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.ProductRequest
	for _, r := range m.rows {
		if !r.NotifiedAt.Valid {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRequestStore) ClaimProductRequestNotification(ctx context.Context, id uuid.UUID) (database.ProductRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.NotifiedAt.Valid {
		return database.ProductRequest{}, pgx.ErrNoRows
	}
	r.NotifiedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	m.rows[id] = r
	return r, nil
}

func TestRequestCreate(t *testing.T) {
	store := newMemRequestStore()
	svc := NewRequestService(store, &fakeNotifier{})

	r, err := svc.Create(context.Background(), NewRequest{
		OwnerID:     testOwner,
		Handle:      "anna",
		DesiredName: "  Samba OG  ",
		DesiredSize: " 41 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Samba OG", r.DesiredName)
	assert.Equal(t, "41", r.DesiredSize)
	assert.Equal(t, enum.RequestStatusNew, r.Status)

	_, err = svc.Create(context.Background(), NewRequest{OwnerID: testOwner, DesiredName: "   "})
	assert.ErrorIs(t, err, ErrRequestNameRequired)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRequestSetStatus(t *testing.T) {
	store := newMemRequestStore()
	svc := NewRequestService(store, &fakeNotifier{})
	r, err := svc.Create(context.Background(), NewRequest{OwnerID: testOwner, DesiredName: "Gorra"})
	require.NoError(t, err)

	updated, err := svc.SetStatus(context.Background(), r.ID, enum.RequestStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, enum.RequestStatusApproved, updated.Status)

	_, err = svc.SetStatus(context.Background(), r.ID, enum.RequestStatusNew)
	assert.ErrorIs(t, err, ErrInvalidRequestStatus)

	_, err = svc.SetStatus(context.Background(), r.ID, "LOST")
	assert.ErrorIs(t, err, ErrInvalidRequestStatus)

	_, err = svc.SetStatus(context.Background(), uuid.New(), enum.RequestStatusDone)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	approved, err := svc.List(context.Background(), enum.RequestStatusApproved, 10)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, r.ID, approved[0].ID)
}

func TestRequestSweepNotifiesOnce(t *testing.T) {
	store := newMemRequestStore()
	n := &fakeNotifier{}
	svc := NewRequestService(store, n)
	for _, name := range []string{"Gorra", "Samba"} {
		_, err := svc.Create(context.Background(), NewRequest{OwnerID: testOwner, DesiredName: name})
		require.NoError(t, err)
	}

	sent, err := svc.SweepNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = svc.SweepNotifications(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, n.requests, 2)
}
