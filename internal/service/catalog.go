package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/platanos-shop/storefront/internal/database"
)

// Catalog listing limits.
const (
	CatalogPageSize  = 10
	SearchLimit      = 25
	TopCategoryLimit = 12
	TopBrandLimit    = 20
)

// CatalogStore defines the read-mostly catalog queries.
type CatalogStore interface {
	GetProduct(ctx context.Context, id int64) (database.Product, error)
	GetVariant(ctx context.Context, id int64) (database.Variant, error)
	ListVariantsByProduct(ctx context.Context, productID int64) ([]database.Variant, error)
	SearchProducts(ctx context.Context, arg database.SearchProductsParams) ([]database.Product, error)
	TopCategories(ctx context.Context, limit int32) ([]database.FacetCount, error)
	TopBrands(ctx context.Context, limit int32) ([]database.FacetCount, error)
	CountProductsByCategory(ctx context.Context, category string) (int64, error)
	CountProductsByBrand(ctx context.Context, brand string) (int64, error)
	ListProductsByCategory(ctx context.Context, arg database.ListProductsPageParams) ([]database.Product, error)
	ListProductsByBrand(ctx context.Context, arg database.ListProductsPageParams) ([]database.Product, error)
	LogSearchQuery(ctx context.Context, arg database.LogSearchQueryParams) error
}

// Facet selects the catalog dimension a listing is paginated on.
type Facet string

const (
	FacetCategory Facet = "CAT"
	FacetBrand    Facet = "BRAND"
)

// ProductPage is one page of a category or brand listing. Page is zero-based.
type ProductPage struct {
	Facet    Facet
	Value    string
	Page     int
	Pages    int
	Products []database.Product
}

// CatalogService wraps catalog lookups.
type CatalogService struct {
	store CatalogStore
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) Product(ctx context.Context, id int64) (database.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Product{}, ErrProductNotFound
		}
		return database.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (s *CatalogService) Variant(ctx context.Context, id int64) (database.Variant, error) {
	v, err := s.store.GetVariant(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Variant{}, ErrProductNotFound
		}
		return database.Variant{}, fmt.Errorf("get variant %d: %w", id, err)
	}
	return v, nil
}

func (s *CatalogService) Variants(ctx context.Context, productID int64) ([]database.Variant, error) {
	vs, err := s.store.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list variants of %d: %w", productID, err)
	}
	return vs, nil
}

// ResolvePrice returns the explicit base price, else the cheapest variant,
// else zero.
func ResolvePrice(p database.Product, variants []database.Variant) int64 {
	if p.BasePriceCents.Valid {
		return p.BasePriceCents.Int64
	}
	var min int64 = -1
	for _, v := range variants {
		if min < 0 || v.PriceCents < min {
			min = v.PriceCents
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// Search finds products by name and records the query. A failed query log
// does not fail the search.
func (s *CatalogService) Search(ctx context.Context, ownerID int64, handle, query string) ([]database.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if err := s.store.LogSearchQuery(ctx, database.LogSearchQueryParams{
		OwnerID: ownerID,
		Handle:  handle,
		Text:    query,
	}); err != nil {
		log.Printf("WARN: log search query for %d: %v", ownerID, err)
	}

	products, err := s.store.SearchProducts(ctx, database.SearchProductsParams{
		Pattern: "%" + query + "%",
		Limit:   SearchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) TopFacets(ctx context.Context, facet Facet) ([]database.FacetCount, error) {
	var (
		rows []database.FacetCount
		err  error
	)
	switch facet {
	case FacetCategory:
		rows, err = s.store.TopCategories(ctx, TopCategoryLimit)
	case FacetBrand:
		rows, err = s.store.TopBrands(ctx, TopBrandLimit)
	default:
		return nil, fmt.Errorf("unknown facet %q", facet)
	}
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", facet, err)
	}
	return rows, nil
}

// Page returns one page of products for a category or brand. An empty
// Products slice means the page is past the end.
func (s *CatalogService) Page(ctx context.Context, facet Facet, value string, page int) (ProductPage, error) {
	if page < 0 {
		page = 0
	}
	arg := database.ListProductsPageParams{
		Value:  value,
		Limit:  CatalogPageSize,
		Offset: int32(page * CatalogPageSize),
	}

	var (
		total    int64
		products []database.Product
		err      error
	)
	switch facet {
	case FacetCategory:
		if total, err = s.store.CountProductsByCategory(ctx, value); err == nil {
			products, err = s.store.ListProductsByCategory(ctx, arg)
		}
	case FacetBrand:
		if total, err = s.store.CountProductsByBrand(ctx, value); err == nil {
			products, err = s.store.ListProductsByBrand(ctx, arg)
		}
	default:
		return ProductPage{}, fmt.Errorf("unknown facet %q", facet)
	}
	if err != nil {
		return ProductPage{}, fmt.Errorf("page %s %q: %w", facet, value, err)
	}

	pages := int((total + CatalogPageSize - 1) / CatalogPageSize)
	if pages < 1 {
		pages = 1
	}
	return ProductPage{Facet: facet, Value: value, Page: page, Pages: pages, Products: products}, nil
}

// NewLineItem snapshots product and variant prices into a cart line.
func NewLineItem(p database.Product, v database.Variant, qty int) database.LineItem {
	return database.LineItem{
		ProductID:      p.ID,
		ProductName:    p.Name,
		VariantID:      v.ID,
		VariantLabel:   v.OptionValue,
		UnitPriceCents: v.PriceCents,
		UnitCostCents:  v.CostCents,
		Quantity:       int32(qty),
	}
}
