package memory

import (
	"context"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository"
	"sync"
	"time"
)

// LetterOfCreditRepository keeps LCs in insertion order; lcs[i] has id i+1.
type LetterOfCreditRepository struct {
	mu  sync.RWMutex
	lcs []*domain.LetterOfCredit
}

func NewLetterOfCreditRepository() *LetterOfCreditRepository {
	return &LetterOfCreditRepository{}
}

func (r *LetterOfCreditRepository) Create(ctx context.Context, lc *domain.LetterOfCredit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *lc
	stored.ID = uint64(len(r.lcs)) + 1
	stored.UpdatedAt = stored.OpenedAt
	r.lcs = append(r.lcs, &stored)

	*lc = stored
	return nil
}

func (r *LetterOfCreditRepository) GetByID(ctx context.Context, id uint64) (*domain.LetterOfCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	lc := *stored
	return &lc, nil
}

// Update replaces the mutable fields of an existing LC. Identity, parties,
// amount and opening time are never overwritten.
func (r *LetterOfCreditRepository) Update(ctx context.Context, lc *domain.LetterOfCredit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.lookup(lc.ID)
	if err != nil {
		return err
	}

	stored.Status = lc.Status
	stored.DisputeRaised = lc.DisputeRaised
	stored.Released = lc.Released
	stored.Bank = lc.Bank
	stored.UpdatedAt = lc.UpdatedAt
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}

	return nil
}

func (r *LetterOfCreditRepository) List(ctx context.Context) ([]*domain.LetterOfCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.LetterOfCredit, 0, len(r.lcs))
	for _, stored := range r.lcs {
		lc := *stored
		result = append(result, &lc)
	}

	return result, nil
}

func (r *LetterOfCreditRepository) GetByStatus(ctx context.Context, status domain.LCStatus) ([]*domain.LetterOfCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.LetterOfCredit
	for _, stored := range r.lcs {
		if stored.Status == status {
			lc := *stored
			result = append(result, &lc)
		}
	}

	return result, nil
}

func (r *LetterOfCreditRepository) Count(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return uint64(len(r.lcs)), nil
}

func (r *LetterOfCreditRepository) lookup(id uint64) (*domain.LetterOfCredit, error) {
	if id == 0 || id > uint64(len(r.lcs)) {
		return nil, fmt.Errorf("%w: letter of credit %d", repository.ErrNotFound, id)
	}
	return r.lcs[id-1], nil
}
