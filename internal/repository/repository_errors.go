package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicateSKU = errors.New("duplicate sku")

const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
	codeCheckViolation   = "23514"
	codeForeignKey       = "23503"

	constraintProductSKU = "products_sku_key"
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// mapLockError turns lock wait failures into domain.ErrBusy.
func mapLockError(err error) error {
	if err == nil {
		return nil
	}

	if code, _ := pgCode(err); code == codeLockNotAvailable {
		return fmt.Errorf("%w: %w", domain.ErrBusy, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrBusy, err)
	}

	return err
}
