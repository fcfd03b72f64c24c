package domain

import (
	"time"
)

// Product represents a product in the catalog.
// The json tags correspond to the fields expected in API responses/requests.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"` // Pointer for nullable fields
	Category      *string   `json:"category,omitempty"`
	ImageURL      *string   `json:"image_url,omitempty"`
	OriginalPrice float64   `json:"original_price"` // Baseline for price automation, never changes after creation
	CurrentPrice  float64   `json:"current_price"`  // Mutated by the price automation scheduler only
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"` // Time of the last current_price change
}

// PriceHistoryEntry is one recorded price of a product.
// Entries are append-only; they go away only when their product is deleted.
type PriceHistoryEntry struct {
	ID        int64     `json:"id,omitempty"`
	ProductID int64     `json:"product_id"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdate is a pending current_price mutation produced by one automation cycle.
type PriceUpdate struct {
	ProductID int64
	NewPrice  float64
	UpdatedAt time.Time
}

// Note on monetary values:
// Prices are float64 on the wire and in the domain, and NUMERIC(12,2) in the database.
// Every price the service produces is rounded to cents by the pricing package
// (shopspring/decimal), so float64 only ever carries 2-decimal values here.
