package repository

import (
	"context"
	"errors"
	"lc_escrow/internal/domain"
)

type RoleRepository interface {
	Get(ctx context.Context, account string) (domain.RoleSet, error)
	Add(ctx context.Context, account string, role domain.Role) (added bool, err error)
}

// ProductRepository is an append-only arena: ids are assigned sequentially
// from 0 and records are never deleted.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id uint64) (*domain.Product, error)
	UpdateStatus(ctx context.Context, id uint64, status domain.ProductStatus) error
	List(ctx context.Context) ([]*domain.Product, error)
	Count(ctx context.Context) (uint64, error)
}

// LetterOfCreditRepository assigns ids sequentially from 1.
type LetterOfCreditRepository interface {
	Create(ctx context.Context, lc *domain.LetterOfCredit) error
	GetByID(ctx context.Context, id uint64) (*domain.LetterOfCredit, error)
	Update(ctx context.Context, lc *domain.LetterOfCredit) error
	List(ctx context.Context) ([]*domain.LetterOfCredit, error)
	GetByStatus(ctx context.Context, status domain.LCStatus) ([]*domain.LetterOfCredit, error)
	Count(ctx context.Context) (uint64, error)
}

type SettlementRepository interface {
	Save(ctx context.Context, settlement *domain.Settlement) error
	GetByLCID(ctx context.Context, lcID uint64) (*domain.Settlement, error)
	Delete(ctx context.Context, lcID uint64) error
}

// EventJournal stores emitted notifications for replay by consumers.
type EventJournal interface {
	Append(ctx context.Context, event domain.Event) error
	ListAfter(ctx context.Context, sequence uint64, limit int) ([]domain.Event, error)
}

var (
	ErrNotFound  = domain.ErrNotFound
	ErrDuplicate = errors.New("duplicate entry")
)
