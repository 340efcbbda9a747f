package memory

import (
	"context"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository"
	"sync"
)

// SettlementRepository holds at most one settlement per LC id.
type SettlementRepository struct {
	mu          sync.RWMutex
	settlements map[uint64]*domain.Settlement
}

func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{
		settlements: make(map[uint64]*domain.Settlement),
	}
}

func (r *SettlementRepository) Save(ctx context.Context, settlement *domain.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.settlements[settlement.LCID]; exists {
		return fmt.Errorf("%w: settlement for letter of credit %d", repository.ErrDuplicate, settlement.LCID)
	}

	stored := *settlement
	r.settlements[settlement.LCID] = &stored

	return nil
}

func (r *SettlementRepository) GetByLCID(ctx context.Context, lcID uint64) (*domain.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settlement, exists := r.settlements[lcID]
	if !exists {
		return nil, fmt.Errorf("%w: settlement for letter of credit %d", repository.ErrNotFound, lcID)
	}
	out := *settlement
	return &out, nil
}

// Delete discards a settlement staged for a transfer that did not go through.
func (r *SettlementRepository) Delete(ctx context.Context, lcID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.settlements[lcID]; !exists {
		return fmt.Errorf("%w: settlement for letter of credit %d", repository.ErrNotFound, lcID)
	}
	delete(r.settlements, lcID)

	return nil
}
