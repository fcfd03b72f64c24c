// Command seed loads the sample catalog into the database.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"product-pricing-service/internal/config"
	"product-pricing-service/internal/domain"
	"product-pricing-service/internal/store"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

type sampleProduct struct {
	name, description, category, imageURL string
	price                                 float64
}

var sampleCatalog = []sampleProduct{
	{
		name:        "Smartphone Samsung Galaxy",
		description: "Smartphone Samsung Galaxy S21 com 128GB",
		category:    "Electronics",
		imageURL:    "https://samsungbrshop.vtexassets.com/arquivos/ids/222466/image-147812a827ce414cbeecb5bb91eecb25-1-.jpg?v=638315272752900000",
		price:       1200,
	},
	{
		name:        "Notebook Lenovo IdeaPad",
		description: "Notebook Lenovo IdeaPad 5 com 16GB RAM",
		category:    "Electronics",
		imageURL:    "https://m.media-amazon.com/images/I/61LSRuuEwBL._AC_UF894,1000_QL80_.jpg",
		price:       2500,
	},
	{
		name:        "Fones Bluetooth JBL",
		description: "Fones de ouvido Bluetooth JBL Tune 510BT",
		category:    "Accessories",
		imageURL:    "https://m.media-amazon.com/images/I/61kFL7ywsZS._AC_UF1000,1000_QL80_.jpg",
		price:       350,
	},
	{
		name:        "Smartwatch Apple",
		description: "Apple Watch Series 7 45mm",
		category:    "Wearables",
		imageURL:    "https://m.media-amazon.com/images/I/51IOwTt4daL._AC_UF1000,1000_QL80_.jpg",
		price:       2800,
	},
	{
		name:        "Tablet iPad",
		description: `Apple iPad 10.2" 64GB Wi-Fi`,
		category:    "Tablets",
		imageURL:    "https://cdn.awsli.com.br/2164/2164487/produto/154326297cec4b41c19.jpg",
		price:       1800,
	},
	{
		name:        "Câmera Canon DSLR",
		description: "Câmera Canon EOS Rebel T7 DSLR",
		category:    "Cameras",
		imageURL:    "https://m.media-amazon.com/images/I/61BKYlNqH6L._AC_UF894,1000_QL80_.jpg",
		price:       3200,
	},
}

func (s sampleProduct) toDomain() *domain.Product {
	return &domain.Product{
		Name:          s.name,
		Description:   &s.description,
		Category:      &s.category,
		ImageURL:      &s.imageURL,
		OriginalPrice: s.price,
	}
}

func main() {
	reset := flag.Bool("reset", false, "delete every product and price history entry before seeding")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found or failed to load, relying on system environment")
	}
	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("FATAL: Error loading configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = run(ctx, cfg, *reset, logger)
	cancel()
	if err != nil {
		logger.Fatalf("FATAL: %v", err)
	}
	logger.Printf("INFO: Database seeded with %d sample products.", len(sampleCatalog))
}

// run connects to the configured database, applies migrations and seeds it.
// The connection pool is closed before run returns, on every path.
func run(ctx context.Context, cfg *config.Config, reset bool, logger *log.Logger) error {
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	dbStore := store.NewPostgresStore(db)
	defer dbStore.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := store.Migrate(cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	if err := seed(ctx, dbStore, reset, logger); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	return nil
}

type catalogSeeder interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	ResetCatalog(ctx context.Context) error
}

func seed(ctx context.Context, s catalogSeeder, reset bool, logger *log.Logger) error {
	if reset {
		if err := s.ResetCatalog(ctx); err != nil {
			return fmt.Errorf("failed to reset catalog: %w", err)
		}
		logger.Println("INFO: Existing catalog removed.")
	}

	for _, sample := range sampleCatalog {
		created, err := s.CreateProduct(ctx, sample.toDomain())
		if err != nil {
			return fmt.Errorf("failed to create %q: %w", sample.name, err)
		}
		logger.Printf("INFO: Created product %d %q at %.2f", created.ID, created.Name, created.CurrentPrice)
	}
	return nil
}
