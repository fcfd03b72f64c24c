package store

import (
	"context"

	"product-pricing-service/internal/domain"
)

// ProductStorer defines the catalog operations used by the API handlers.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	FetchAllProducts(ctx context.Context) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	GetPriceHistory(ctx context.Context, productID int64, limit int) ([]domain.PriceHistoryEntry, error) // Newest first
}

// PriceUpdater defines the bulk read/write pair used by the price automation.
// ApplyPriceUpdates is all-or-nothing: every product mutation and every history
// entry is committed together, or none is.
type PriceUpdater interface {
	FetchAllProducts(ctx context.Context) ([]domain.Product, error)
	ApplyPriceUpdates(ctx context.Context, updates []domain.PriceUpdate, history []domain.PriceHistoryEntry) error
}
