package main

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"product-pricing-service/internal/config"
	"product-pricing-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSeeder struct {
	resets  int
	created []domain.Product
	failOn  string
}

func (r *recordingSeeder) CreateProduct(_ context.Context, p *domain.Product) (*domain.Product, error) {
	if p.Name == r.failOn {
		return nil, errors.New("insert failed")
	}
	out := *p
	out.ID = int64(len(r.created) + 1)
	out.CurrentPrice = p.OriginalPrice
	r.created = append(r.created, out)
	return &out, nil
}

func (r *recordingSeeder) ResetCatalog(_ context.Context) error {
	r.resets++
	return nil
}

func TestSeed_InsertsSampleCatalog(t *testing.T) {
	rec := &recordingSeeder{}

	require.NoError(t, seed(context.Background(), rec, false, log.New(io.Discard, "", 0)))

	assert.Zero(t, rec.resets)
	require.Len(t, rec.created, 6)
	assert.Equal(t, "Smartphone Samsung Galaxy", rec.created[0].Name)
	assert.Equal(t, 1200.0, rec.created[0].OriginalPrice)
	assert.Equal(t, "Câmera Canon DSLR", rec.created[5].Name)
	require.NotNil(t, rec.created[4].Description)
	assert.Equal(t, `Apple iPad 10.2" 64GB Wi-Fi`, *rec.created[4].Description)
	for _, p := range rec.created {
		assert.NotNil(t, p.Category)
		assert.NotNil(t, p.ImageURL)
	}
}

func TestSeed_ResetAndFailure(t *testing.T) {
	rec := &recordingSeeder{failOn: "Tablet iPad"}

	err := seed(context.Background(), rec, true, log.New(io.Discard, "", 0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tablet iPad")
	assert.Equal(t, 1, rec.resets)
	assert.Len(t, rec.created, 4)
}

func TestRun_UnreachableDatabase(t *testing.T) {
	cfg := &config.Config{Postgres: config.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		User:     "seed",
		Password: "seed",
		DBName:   "catalog",
		SSLMode:  "disable",
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, cfg, false, log.New(io.Discard, "", 0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
}
