package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, description, brand, category, image_url, base_price_cents, source_url, created_at`

func scanProduct(row rowScanner) (Product, error) {
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Brand,
		&i.Category,
		&i.ImageUrl,
		&i.BasePriceCents,
		&i.SourceUrl,
		&i.CreatedAt,
	)
	return i, err
}

func (q *Queries) queryProducts(ctx context.Context, sql string, args ...interface{}) ([]Product, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Product{}
	for rows.Next() {
		i, err := scanProduct(rows)
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

const variantColumns = `id, product_id, option_name, option_value, price_cents, cost_cents, stock, created_at`

func scanVariant(row rowScanner) (Variant, error) {
	var i Variant
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.OptionName,
		&i.OptionValue,
		&i.PriceCents,
		&i.CostCents,
		&i.Stock,
		&i.CreatedAt,
	)
	return i, err
}

const getProduct = `-- name: GetProduct :one
SELECT ` + productColumns + ` FROM products WHERE id = $1`

func (q *Queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const getVariant = `-- name: GetVariant :one
SELECT ` + variantColumns + ` FROM variants WHERE id = $1`

func (q *Queries) GetVariant(ctx context.Context, id int64) (Variant, error) {
	return scanVariant(q.db.QueryRow(ctx, getVariant, id))
}

const listVariantsByProduct = `-- name: ListVariantsByProduct :many
SELECT ` + variantColumns + ` FROM variants WHERE product_id = $1 ORDER BY id ASC`

func (q *Queries) ListVariantsByProduct(ctx context.Context, productID int64) ([]Variant, error) {
	rows, err := q.db.Query(ctx, listVariantsByProduct, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Variant{}
	for rows.Next() {
		i, err := scanVariant(rows)
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

const searchProducts = `-- name: SearchProducts :many
SELECT ` + productColumns + ` FROM products WHERE name ILIKE $1 ORDER BY id DESC LIMIT $2`

type SearchProductsParams struct {
	Pattern string `json:"pattern"`
	Limit   int32  `json:"limit"`
}

func (q *Queries) SearchProducts(ctx context.Context, arg SearchProductsParams) ([]Product, error) {
	return q.queryProducts(ctx, searchProducts, arg.Pattern, arg.Limit)
}

type FacetCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

func (q *Queries) queryFacets(ctx context.Context, sql string, limit int32) ([]FacetCount, error) {
	rows, err := q.db.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []FacetCount{}
	for rows.Next() {
		var i FacetCount
		if err := rows.Scan(&i.Value, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const topCategories = `-- name: TopCategories :many
SELECT category, COUNT(*) FROM products WHERE category <> '' GROUP BY 1 ORDER BY 2 DESC LIMIT $1`

func (q *Queries) TopCategories(ctx context.Context, limit int32) ([]FacetCount, error) {
	return q.queryFacets(ctx, topCategories, limit)
}

const topBrands = `-- name: TopBrands :many
SELECT brand, COUNT(*) FROM products WHERE brand <> '' GROUP BY 1 ORDER BY 2 DESC LIMIT $1`

func (q *Queries) TopBrands(ctx context.Context, limit int32) ([]FacetCount, error) {
	return q.queryFacets(ctx, topBrands, limit)
}

const countProductsByCategory = `-- name: CountProductsByCategory :one
SELECT COUNT(*) FROM products WHERE category ILIKE $1`

func (q *Queries) CountProductsByCategory(ctx context.Context, category string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countProductsByCategory, category).Scan(&count)
	return count, err
}

const countProductsByBrand = `-- name: CountProductsByBrand :one
SELECT COUNT(*) FROM products WHERE brand ILIKE $1`

func (q *Queries) CountProductsByBrand(ctx context.Context, brand string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countProductsByBrand, brand).Scan(&count)
	return count, err
}

type ListProductsPageParams struct {
	Value  string `json:"value"`
	Limit  int32  `json:"limit"`
	Offset int32  `json:"offset"`
}

const listProductsByCategory = `-- name: ListProductsByCategory :many
SELECT ` + productColumns + ` FROM products WHERE category ILIKE $1 ORDER BY id DESC LIMIT $2 OFFSET $3`

func (q *Queries) ListProductsByCategory(ctx context.Context, arg ListProductsPageParams) ([]Product, error) {
	return q.queryProducts(ctx, listProductsByCategory, arg.Value, arg.Limit, arg.Offset)
}

const listProductsByBrand = `-- name: ListProductsByBrand :many
SELECT ` + productColumns + ` FROM products WHERE brand ILIKE $1 ORDER BY id DESC LIMIT $2 OFFSET $3`

func (q *Queries) ListProductsByBrand(ctx context.Context, arg ListProductsPageParams) ([]Product, error) {
	return q.queryProducts(ctx, listProductsByBrand, arg.Value, arg.Limit, arg.Offset)
}

const decrementVariantStock = `-- name: DecrementVariantStock :execrows
UPDATE variants SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

type DecrementVariantStockParams struct {
	ID       int64 `json:"id"`
	Quantity int32 `json:"quantity"`
}

// DecrementVariantStock returns the number of affected rows; zero means
// the variant is gone or has insufficient stock.
func (q *Queries) DecrementVariantStock(ctx context.Context, arg DecrementVariantStockParams) (int64, error) {
	result, err := q.db.Exec(ctx, decrementVariantStock, arg.ID, arg.Quantity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (name, description, brand, category, base_price_cents)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + productColumns

type CreateProductParams struct {
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Brand          string      `json:"brand"`
	Category       string      `json:"category"`
	BasePriceCents pgtype.Int8 `json:"base_price_cents"`
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, createProduct,
		arg.Name,
		arg.Description,
		arg.Brand,
		arg.Category,
		arg.BasePriceCents,
	))
}

const createVariant = `-- name: CreateVariant :one
INSERT INTO variants (product_id, option_name, option_value, price_cents, cost_cents, stock)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + variantColumns

type CreateVariantParams struct {
	ProductID   int64  `json:"product_id"`
	OptionName  string `json:"option_name"`
	OptionValue string `json:"option_value"`
	PriceCents  int64  `json:"price_cents"`
	CostCents   int64  `json:"cost_cents"`
	Stock       int32  `json:"stock"`
}

func (q *Queries) CreateVariant(ctx context.Context, arg CreateVariantParams) (Variant, error) {
	return scanVariant(q.db.QueryRow(ctx, createVariant,
		arg.ProductID,
		arg.OptionName,
		arg.OptionValue,
		arg.PriceCents,
		arg.CostCents,
		arg.Stock,
	))
}

const logSearchQuery = `-- name: LogSearchQuery :exec
INSERT INTO search_queries (owner_id, handle, text) VALUES ($1, $2, $3)`

type LogSearchQueryParams struct {
	OwnerID int64  `json:"owner_id"`
	Handle  string `json:"handle"`
	Text    string `json:"text"`
}

func (q *Queries) LogSearchQuery(ctx context.Context, arg LogSearchQueryParams) error {
	_, err := q.db.Exec(ctx, logSearchQuery, arg.OwnerID, arg.Handle, arg.Text)
	return err
}
