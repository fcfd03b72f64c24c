package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"product-pricing-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound = errors.New("store: product not found")
	ErrUpdateFailed    = errors.New("store: update failed, affected rows do not match the batch")
	ErrInvalidPrice    = errors.New("store: price violates non-negative constraint")
)

const defaultHistoryLimit = 100

const productColumns = `id, name, description, category, image_url, original_price, current_price, created_at, updated_at`

const (
	createProductQuery = `
		INSERT INTO products.products (name, description, category, image_url, original_price, current_price)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + productColumns + `;`

	insertHistoryQuery = `
		INSERT INTO products.price_history (product_id, price, recorded_at)
		VALUES ($1, $2, $3);`

	getProductByIDQuery = `
		SELECT ` + productColumns + `
		FROM products.products
		WHERE id = $1;`

	fetchAllProductsQuery = `
		SELECT ` + productColumns + `
		FROM products.products
		ORDER BY id ASC;`

	deleteProductQuery = `DELETE FROM products.products WHERE id = $1;`

	productExistsQuery = `SELECT EXISTS(SELECT 1 FROM products.products WHERE id = $1);`

	priceHistoryQuery = `
		SELECT id, product_id, price, recorded_at
		FROM products.price_history
		WHERE product_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2;`

	// Timestamps travel as text[] and are cast server side; pq has no typed
	// array for time.Time.
	applyPriceUpdatesQuery = `
		UPDATE products.products AS p
		SET current_price = u.price, updated_at = u.updated_at
		FROM unnest($1::bigint[], $2::numeric[], $3::timestamptz[]) AS u(id, price, updated_at)
		WHERE p.id = u.id;`

	resetCatalogQuery = `TRUNCATE products.products RESTART IDENTITY CASCADE;`
)

// PostgresStore implements the ProductStorer and PriceUpdater interfaces using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ProductStorer = (*PostgresStore)(nil)
	_ PriceUpdater  = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// withTx runs fn inside a transaction, committing on success and rolling back on
// error or panic.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("ERROR: Failed to rollback transaction: %v", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *domain.Product) error {
	return row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.ImageURL,
		&p.OriginalPrice, &p.CurrentPrice, &p.CreatedAt, &p.UpdatedAt,
	)
}

// mapConstraintError turns CHECK violations (SQLSTATE 23514) into ErrInvalidPrice.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" {
		return ErrInvalidPrice
	}
	return err
}

// --- ProductStorer Implementation ---

// CreateProduct inserts a product with current_price = original_price and records
// that price as the product's first history entry, in one transaction.
func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	var created domain.Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, createProductQuery,
			product.Name, product.Description, product.Category, product.ImageURL, product.OriginalPrice,
		)
		if err := scanProduct(row, &created); err != nil {
			return fmt.Errorf("store: CreateProduct failed to scan row: %w", mapConstraintError(err))
		}
		if _, err := tx.ExecContext(ctx, insertHistoryQuery, created.ID, created.CurrentPrice, created.CreatedAt); err != nil {
			return fmt.Errorf("store: CreateProduct failed to record initial price: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	if err := scanProduct(s.db.QueryRowContext(ctx, getProductByIDQuery, id), &product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	return &product, nil
}

// FetchAllProducts returns a snapshot of the whole catalog ordered by id.
func (s *PostgresStore) FetchAllProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, fetchAllProductsQuery)
	if err != nil {
		return nil, fmt.Errorf("store: FetchAllProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("store: FetchAllProducts failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: FetchAllProducts iteration error: %w", err)
	}
	return products, nil
}

// DeleteProduct removes a product; its price history goes with it (ON DELETE CASCADE).
func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, deleteProductQuery, id)
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to execute delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: DeleteProduct failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, productID int64, limit int) ([]domain.PriceHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, productExistsQuery, productID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: GetPriceHistory failed to check product existence: %w", err)
	}
	if !exists {
		return nil, ErrProductNotFound
	}

	rows, err := s.db.QueryContext(ctx, priceHistoryQuery, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: GetPriceHistory failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.PriceHistoryEntry, 0, limit)
	for rows.Next() {
		var e domain.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Price, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("store: GetPriceHistory failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: GetPriceHistory iteration error: %w", err)
	}
	return entries, nil
}

// ResetCatalog deletes every product and history row and restarts the id sequences.
func (s *PostgresStore) ResetCatalog(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, resetCatalogQuery); err != nil {
		return fmt.Errorf("store: ResetCatalog failed: %w", err)
	}
	return nil
}

// --- PriceUpdater Implementation ---

// ApplyPriceUpdates persists one automation cycle: a single bulk UPDATE of the
// products followed by a COPY of the history entries, in one transaction. If any
// product of the batch is missing the whole batch is rolled back with ErrUpdateFailed.
func (s *PostgresStore) ApplyPriceUpdates(ctx context.Context, updates []domain.PriceUpdate, history []domain.PriceHistoryEntry) error {
	if len(updates) == 0 && len(history) == 0 {
		return nil
	}

	ids := make([]int64, len(updates))
	prices := make([]float64, len(updates))
	stamps := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.ProductID
		prices[i] = u.NewPrice
		stamps[i] = u.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if len(updates) > 0 {
			result, err := tx.ExecContext(ctx, applyPriceUpdatesQuery, pq.Array(ids), pq.Array(prices), pq.Array(stamps))
			if err != nil {
				return fmt.Errorf("store: ApplyPriceUpdates failed to update products: %w", mapConstraintError(err))
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("store: ApplyPriceUpdates failed to get rows affected: %w", err)
			}
			if rowsAffected != int64(len(updates)) {
				return fmt.Errorf("%w: expected %d rows, updated %d", ErrUpdateFailed, len(updates), rowsAffected)
			}
		}

		if len(history) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("products", "price_history", "product_id", "price", "recorded_at"))
		if err != nil {
			return fmt.Errorf("store: ApplyPriceUpdates failed to prepare history copy: %w", err)
		}
		defer stmt.Close()

		for _, e := range history {
			if _, err := stmt.ExecContext(ctx, e.ProductID, e.Price, e.Timestamp); err != nil {
				return fmt.Errorf("store: ApplyPriceUpdates failed to buffer history row for product %d: %w", e.ProductID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("store: ApplyPriceUpdates failed to flush history rows: %w", mapConstraintError(err))
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		log.Println("INFO: Closing database connection pool...")
		err := s.db.Close()
		if err != nil {
			log.Printf("ERROR: Failed to close database connection pool: %v", err)
			return err
		}
		log.Println("INFO: Database connection pool closed successfully.")
		return nil
	}
	return nil
}
