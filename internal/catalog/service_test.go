package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-market/vantage-market/internal/audit"
	"github.com/vantage-market/vantage-market/internal/authz"
	"github.com/vantage-market/vantage-market/internal/shared"
)

type memoryProductRepo struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryProductRepo() *memoryProductRepo {
	return &memoryProductRepo{products: make(map[int64]Product)}
}

func (r *memoryProductRepo) List(ctx context.Context, vendorID int64, page shared.Pagination) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if vendorID == 0 || p.VendorID == vendorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryProductRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryProductRepo) Create(ctx context.Context, p Product) (Product, error) {
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryProductRepo) UpdateStatus(ctx context.Context, id int64, status ProductStatus) error {
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Status = status
	r.products[id] = p
	return nil
}

func (r *memoryProductRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

type recordingAuditor struct {
	events []audit.Event
}

func (r *recordingAuditor) Record(ctx context.Context, ev audit.Event) (audit.Entry, error) {
	r.events = append(r.events, ev)
	return audit.Entry{}, nil
}

var actor = authz.Actor{ID: "42", Type: audit.ActorUser}

func TestCreateForcesDraftAndNormalizesCurrency(t *testing.T) {
	repo := newMemoryProductRepo()
	auditor := &recordingAuditor{}
	svc := NewService(repo, auditor)

	created, err := svc.Create(context.Background(), actor, Product{
		VendorID: 3,
		SKU:      "SKU-001",
		Name:     "Widget",
		Price:    19.99,
		Currency: "usd",
		Status:   ProductActive,
	})
	require.NoError(t, err)
	require.Equal(t, ProductDraft, created.Status)
	require.Equal(t, "USD", created.Currency)

	require.Len(t, auditor.events, 1)
	ev := auditor.events[0]
	require.Equal(t, "product.created", ev.Action)
	require.Equal(t, "catalog", ev.Module)
	require.True(t, ev.Financial)
	require.Equal(t, int64(3), ev.Meta["vendorId"])
	require.Equal(t, "SKU-001", ev.Meta["sku"])
}

func TestPublishActivatesListing(t *testing.T) {
	repo := newMemoryProductRepo()
	auditor := &recordingAuditor{}
	svc := NewService(repo, auditor)
	ctx := context.Background()

	created, err := svc.Create(ctx, actor, Product{VendorID: 3, SKU: "SKU-001", Name: "Widget"})
	require.NoError(t, err)

	require.NoError(t, svc.Publish(ctx, actor, created.ID))
	got, _ := repo.Get(ctx, created.ID)
	require.Equal(t, ProductActive, got.Status)
	require.Equal(t, "product.published", auditor.events[len(auditor.events)-1].Action)
}

func TestDeleteCarriesPriceOnAuditEvent(t *testing.T) {
	repo := newMemoryProductRepo()
	auditor := &recordingAuditor{}
	svc := NewService(repo, auditor)
	ctx := context.Background()

	created, err := svc.Create(ctx, actor, Product{VendorID: 3, SKU: "SKU-002", Name: "Server Rack", Price: 62000, Currency: "USD"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, actor, created.ID))
	_, err = repo.Get(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	ev := auditor.events[len(auditor.events)-1]
	require.Equal(t, "product.deleted", ev.Action)
	require.Equal(t, audit.OperationDelete, ev.Operation)
	require.Equal(t, 62000.0, ev.Amount)
}

func TestPublishUnknownProduct(t *testing.T) {
	svc := NewService(newMemoryProductRepo(), &recordingAuditor{})
	err := svc.Publish(context.Background(), actor, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
