package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ProductRepository interface {
	GetCategory(ctx context.Context, categoryID int64) (*domain.Category, error)
	Create(ctx context.Context, tx pgx.Tx, product *domain.Product) error
	GetByID(ctx context.Context, productID int64) (*domain.Product, error)
}

type productRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("product_repository"),
	}
}

func (r *productRepo) GetCategory(ctx context.Context, categoryID int64) (*domain.Category, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetCategory")
	defer span.End()

	span.SetAttributes(attribute.Int64("category_id", categoryID))

	var category domain.Category
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, categoryID).
		Scan(&category.ID, &category.Name)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}

		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	query := `
		SELECT id, name, is_key_attribute
		FROM category_attributes
		WHERE category_id = $1
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query, categoryID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query category attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var attr domain.CategoryAttribute
		if err := rows.Scan(&attr.ID, &attr.Name, &attr.IsKeyAttribute); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan category attribute: %w", err)
		}
		category.Attributes = append(category.Attributes, attr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &category, nil
}

// Create inserts the product and its attribute values. A SKU collision returns
// ErrDuplicateSKU and leaves tx aborted.
func (r *productRepo) Create(ctx context.Context, tx pgx.Tx, product *domain.Product) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("sku", product.SKU),
		attribute.Int64("category_id", product.Category.ID),
	)

	query := `
		INSERT INTO products (category_id, name, description, price, sku, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		product.Category.ID,
		product.Name,
		product.Description,
		product.Price,
		product.SKU,
		product.IsActive,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		if code, constraint := pgCode(err); code == codeUniqueViolation && constraint == constraintProductSKU {
			mylogger.Warn(ctx, r.logger, "SKU collision", zap.String("sku", product.SKU))
			return fmt.Errorf("%w: %s", ErrDuplicateSKU, product.SKU)
		}

		return fmt.Errorf("failed to insert product: %w", err)
	}

	for _, attr := range product.Attributes {
		_, err := tx.Exec(
			ctx,
			`INSERT INTO product_attribute_values (product_id, attribute_id, value) VALUES ($1, $2, $3)`,
			product.ID,
			attr.AttributeID,
			attr.Value,
		)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to insert attribute value: %w", err)
		}
	}

	return nil
}

func (r *productRepo) GetByID(ctx context.Context, productID int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", productID))

	query := `
		SELECT p.id, p.name, p.description, p.price, p.sku, p.is_active, p.created_at, p.updated_at,
			c.id, c.name
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`

	var product domain.Product
	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.SKU,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Category.ID,
		&product.Category.Name,
	)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}

		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	attrQuery := `
		SELECT v.attribute_id, a.name, v.value, a.is_key_attribute
		FROM product_attribute_values v
		JOIN category_attributes a ON a.id = v.attribute_id
		WHERE v.product_id = $1
		ORDER BY a.name
	`

	rows, err := r.pool.Query(ctx, attrQuery, productID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query product attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var attr domain.AttributeValue
		if err := rows.Scan(&attr.AttributeID, &attr.Name, &attr.Value, &attr.IsKeyAttribute); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan product attribute: %w", err)
		}
		product.Attributes = append(product.Attributes, attr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &product, nil
}
