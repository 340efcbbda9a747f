package memory

import (
	"context"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository"
	"sync"
	"time"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products []*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{}
}

// Create assigns the next sequential id to product.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *product
	stored.ID = uint64(len(r.products))
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = stored.CreatedAt
	r.products = append(r.products, &stored)

	*product = stored
	return nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id uint64) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id >= uint64(len(r.products)) {
		return nil, fmt.Errorf("%w: product %d", repository.ErrNotFound, id)
	}
	product := *r.products[id]
	return &product, nil
}

func (r *ProductRepository) UpdateStatus(ctx context.Context, id uint64, status domain.ProductStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id >= uint64(len(r.products)) {
		return fmt.Errorf("%w: product %d", repository.ErrNotFound, id)
	}

	product := r.products[id]
	product.Status = status
	product.UpdatedAt = time.Now()

	return nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		product := *p
		result = append(result, &product)
	}

	return result, nil
}

func (r *ProductRepository) Count(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return uint64(len(r.products)), nil
}
