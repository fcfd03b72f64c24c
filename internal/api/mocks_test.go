package api

import (
	"context"
	"time"

	"product-pricing-service/internal/automation"
	"product-pricing-service/internal/domain"

	"github.com/stretchr/testify/mock"
)

// MockProductStorer is a mock implementation of store.ProductStorer
type MockProductStorer struct {
	mock.Mock
}

func (m *MockProductStorer) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) FetchAllProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = arg0.([]domain.Product)
	}
	return products, args.Error(1)
}

func (m *MockProductStorer) DeleteProduct(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProductStorer) GetPriceHistory(ctx context.Context, productID int64, limit int) ([]domain.PriceHistoryEntry, error) {
	args := m.Called(ctx, productID, limit)
	var entries []domain.PriceHistoryEntry
	if arg0 := args.Get(0); arg0 != nil {
		entries = arg0.([]domain.PriceHistoryEntry)
	}
	return entries, args.Error(1)
}

// MockAutomation is a mock implementation of AutomationController
type MockAutomation struct {
	mock.Mock
}

func (m *MockAutomation) Start() bool {
	return m.Called().Bool(0)
}

func (m *MockAutomation) Stop() bool {
	return m.Called().Bool(0)
}

func (m *MockAutomation) Status() automation.Status {
	return m.Called().Get(0).(automation.Status)
}

func (m *MockAutomation) SetInterval(d time.Duration) error {
	return m.Called(d).Error(0)
}

func (m *MockAutomation) SetPriceRange(minFactor, maxFactor float64) error {
	return m.Called(minFactor, maxFactor).Error(0)
}

// Helper function to get a pointer (useful for optional fields in domain structs)
func PtrTo[T any](v T) *T {
	return &v
}
