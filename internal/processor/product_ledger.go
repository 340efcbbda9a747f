package processor

import (
	"context"
	"errors"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository"
	"lc_escrow/pkg/validator"
	"log/slog"
	"strconv"
)

// ProductLedger tracks the physical goods lifecycle, independent of payment:
// Created -> Delivered -> Received, never skipped or reversed.
type ProductLedger struct {
	repo   repository.ProductRepository
	roles  RoleChecker
	exec   *Executor
	logger *slog.Logger
}

type RoleChecker interface {
	HasRole(ctx context.Context, account string, role domain.Role) bool
}

func NewProductLedger(repo repository.ProductRepository, roles RoleChecker, exec *Executor, logger *slog.Logger) *ProductLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductLedger{repo: repo, roles: roles, exec: exec, logger: logger}
}

func (l *ProductLedger) CreateProduct(ctx context.Context, caller, name string) (*domain.Product, error) {
	const op = "createProduct"

	var product *domain.Product
	err := l.exec.Execute(ctx, op, func(step *Step) error {
		if !l.roles.HasRole(ctx, caller, domain.RoleImporter) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleImporter.String())
		}
		normalized, err := validator.NormalizeProductName(name)
		if err != nil {
			return domain.Reject(op, domain.ErrInvalidInput, "name", err.Error(), "")
		}

		p := &domain.Product{
			Name:      normalized,
			Importer:  caller,
			Status:    domain.ProductCreated,
			CreatedAt: l.exec.Now(),
		}
		if err := l.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		product = p

		step.Emit(domain.NewEvent(domain.EventProductCreated, p.CreatedAt).
			With("product_id", strconv.FormatUint(p.ID, 10)).
			With("name", p.Name).
			With("importer", p.Importer))
		step.AfterCommit(func() {
			l.logger.InfoContext(ctx, "Product created",
				slog.Uint64("product_id", p.ID),
				slog.String("name", p.Name),
				slog.String("importer", p.Importer))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (l *ProductLedger) MarkDelivered(ctx context.Context, caller string, productID uint64) error {
	const op = "markDelivered"

	return l.exec.Execute(ctx, op, func(step *Step) error {
		if !l.roles.HasRole(ctx, caller, domain.RoleLogistics) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleLogistics.String())
		}
		product, err := l.load(ctx, op, productID)
		if err != nil {
			return err
		}
		return l.advance(ctx, step, op, product, domain.ProductCreated, domain.ProductDelivered)
	})
}

// ConfirmReceived may only be called by the importer that created the product.
func (l *ProductLedger) ConfirmReceived(ctx context.Context, caller string, productID uint64) error {
	const op = "confirmReceived"

	return l.exec.Execute(ctx, op, func(step *Step) error {
		if !l.roles.HasRole(ctx, caller, domain.RoleImporter) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleImporter.String())
		}
		product, err := l.load(ctx, op, productID)
		if err != nil {
			return err
		}
		if !sameAccount(product.Importer, caller) {
			return domain.Reject(op, domain.ErrUnauthorized, "importer", caller, product.Importer)
		}
		return l.advance(ctx, step, op, product, domain.ProductDelivered, domain.ProductReceived)
	})
}

func (l *ProductLedger) advance(ctx context.Context, step *Step, op string, product *domain.Product, from, to domain.ProductStatus) error {
	if product.Status != from {
		return domain.Reject(op, domain.ErrInvalidState, "status", product.Status.String(), from.String())
	}
	if err := l.repo.UpdateStatus(ctx, product.ID, to); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	step.Emit(domain.NewEvent(domain.EventProductStatus, l.exec.Now()).
		With("product_id", strconv.FormatUint(product.ID, 10)).
		With("old_status", from.String()).
		With("new_status", to.String()))
	step.AfterCommit(func() {
		l.logger.InfoContext(ctx, "Product status changed",
			slog.Uint64("product_id", product.ID),
			slog.String("old_status", from.String()),
			slog.String("new_status", to.String()))
	})
	return nil
}

func (l *ProductLedger) GetProduct(ctx context.Context, productID uint64) (*domain.Product, error) {
	return l.load(ctx, "getProduct", productID)
}

func (l *ProductLedger) GetStatus(ctx context.Context, productID uint64) (domain.ProductStatus, error) {
	product, err := l.load(ctx, "getStatus", productID)
	if err != nil {
		return 0, err
	}
	return product.Status, nil
}

// IsDelivered reports whether the goods reached the buyer, which stays true
// after receipt is confirmed.
func (l *ProductLedger) IsDelivered(ctx context.Context, productID uint64) (bool, error) {
	status, err := l.GetStatus(ctx, productID)
	if err != nil {
		return false, err
	}
	return status >= domain.ProductDelivered, nil
}

func (l *ProductLedger) IsReceived(ctx context.Context, productID uint64) (bool, error) {
	status, err := l.GetStatus(ctx, productID)
	if err != nil {
		return false, err
	}
	return status == domain.ProductReceived, nil
}

func (l *ProductLedger) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return l.repo.List(ctx)
}

func (l *ProductLedger) ProductCount(ctx context.Context) (uint64, error) {
	return l.repo.Count(ctx)
}

func (l *ProductLedger) load(ctx context.Context, op string, productID uint64) (*domain.Product, error) {
	product, err := l.repo.GetByID(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Reject(op, domain.ErrNotFound, "product_id", strconv.FormatUint(productID, 10), "")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return product, nil
}
