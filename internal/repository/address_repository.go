package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type AddressRepository interface {
	GetByID(ctx context.Context, addressID int64) (*domain.Address, error)
}

type addressRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewAddressRepository(pool *pgxpool.Pool) AddressRepository {
	return &addressRepo{
		pool:   pool,
		tracer: otel.Tracer("address_repository"),
	}
}

func (r *addressRepo) GetByID(ctx context.Context, addressID int64) (*domain.Address, error) {
	ctx, span := r.tracer.Start(ctx, "AddressRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("address_id", addressID))

	query := `
		SELECT id, region, city, street, postal_code, country, created_at
		FROM addresses
		WHERE id = $1
	`

	var address domain.Address
	err := r.pool.QueryRow(ctx, query, addressID).Scan(
		&address.ID,
		&address.Region,
		&address.City,
		&address.Street,
		&address.PostalCode,
		&address.Country,
		&address.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAddressNotFound
		}

		return nil, fmt.Errorf("failed to query address: %w", err)
	}

	return &address, nil
}
