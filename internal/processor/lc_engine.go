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
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementToken is the narrow view of the fungible token the engine pays
// with. The engine pulls funds as spender under its own account.
type SettlementToken interface {
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
	Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error)
	TransferFrom(ctx context.Context, spender, owner, to string, amount decimal.Decimal) error
}

type ProductReader interface {
	GetProduct(ctx context.Context, productID uint64) (*domain.Product, error)
}

type LetterOfCreditEngine struct {
	lcs         repository.LetterOfCreditRepository
	settlements repository.SettlementRepository
	roles       RoleChecker
	products    ProductReader
	token       SettlementToken
	account     string
	exec        *Executor
	logger      *slog.Logger
}

func NewLetterOfCreditEngine(
	lcs repository.LetterOfCreditRepository,
	settlements repository.SettlementRepository,
	roles RoleChecker,
	products ProductReader,
	token SettlementToken,
	account string,
	exec *Executor,
	logger *slog.Logger,
) *LetterOfCreditEngine {
	if logger == nil {
		logger = slog.Default()
	}

	return &LetterOfCreditEngine{
		lcs:         lcs,
		settlements: settlements,
		roles:       roles,
		products:    products,
		token:       token,
		account:     account,
		exec:        exec,
		logger:      logger,
	}
}

// Account is the spender address buyers approve before payment release.
func (e *LetterOfCreditEngine) Account() string {
	return e.account
}

func (e *LetterOfCreditEngine) OpenLC(ctx context.Context, caller string, productID uint64, seller string, amount decimal.Decimal) (*domain.LetterOfCredit, error) {
	const op = "openLC"

	var opened *domain.LetterOfCredit
	err := e.exec.Execute(ctx, op, func(step *Step) error {
		if !e.roles.HasRole(ctx, caller, domain.RoleImporter) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleImporter.String())
		}
		if err := validator.ValidateAmount(amount); err != nil {
			return domain.Reject(op, domain.ErrInvalidInput, "amount", amount.String(), "> 0")
		}
		if err := validator.ValidateAccount(seller); err != nil {
			return domain.Reject(op, domain.ErrInvalidInput, "seller", seller, "")
		}
		if _, err := e.products.GetProduct(ctx, productID); err != nil {
			return err
		}
		if !e.roles.HasRole(ctx, seller, domain.RoleExporter) {
			return domain.Reject(op, domain.ErrUnauthorized, "seller", seller, domain.RoleExporter.String())
		}

		lc := &domain.LetterOfCredit{
			ProductID: productID,
			Buyer:     caller,
			Seller:    seller,
			Amount:    amount,
			Status:    domain.LCOpened,
			OpenedAt:  e.exec.Now(),
		}
		if err := e.lcs.Create(ctx, lc); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		opened = lc

		step.Emit(domain.NewEvent(domain.EventLCCreated, lc.OpenedAt).
			With("lc_id", formatID(lc.ID)).
			With("product_id", formatID(lc.ProductID)).
			With("buyer", lc.Buyer).
			With("seller", lc.Seller).
			With("amount", lc.Amount.String()))
		step.AfterCommit(func() {
			e.logger.InfoContext(ctx, "Letter of credit opened",
				slog.Uint64("lc_id", lc.ID),
				slog.Uint64("product_id", lc.ProductID),
				slog.String("buyer", lc.Buyer),
				slog.String("seller", lc.Seller),
				slog.String("amount", lc.Amount.String()))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// ApproveLC must happen within ApprovalDeadline of opening. A late approval
// fails and the LC stays OPENED; nothing expires it automatically.
func (e *LetterOfCreditEngine) ApproveLC(ctx context.Context, caller string, lcID uint64) error {
	const op = "approveLC"

	return e.exec.Execute(ctx, op, func(step *Step) error {
		if !e.roles.HasRole(ctx, caller, domain.RoleBank) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleBank.String())
		}
		lc, err := e.load(ctx, op, lcID)
		if err != nil {
			return err
		}
		if err := requireStatus(op, lc, domain.LCOpened); err != nil {
			return err
		}
		now := e.exec.Now()
		if !validator.WithinDeadline(lc.OpenedAt, now, domain.ApprovalDeadline) {
			return domain.Reject(op, domain.ErrDeadlineExceeded, "now",
				now.UTC().Format(time.RFC3339), "<= "+lc.ApprovalDeadlineAt().UTC().Format(time.RFC3339))
		}

		lc.Bank = caller
		return e.transition(ctx, step, op, lc, domain.LCApproved)
	})
}

func (e *LetterOfCreditEngine) ConfirmShipment(ctx context.Context, caller string, lcID uint64) error {
	const op = "confirmShipment"

	return e.exec.Execute(ctx, op, func(step *Step) error {
		if !e.roles.HasRole(ctx, caller, domain.RoleExporter) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleExporter.String())
		}
		lc, err := e.load(ctx, op, lcID)
		if err != nil {
			return err
		}
		if !sameAccount(lc.Seller, caller) {
			return domain.Reject(op, domain.ErrUnauthorized, "seller", caller, lc.Seller)
		}
		if err := requireStatus(op, lc, domain.LCApproved); err != nil {
			return err
		}
		return e.transition(ctx, step, op, lc, domain.LCShipped)
	})
}

func (e *LetterOfCreditEngine) MarkDeliveredPending(ctx context.Context, caller string, lcID uint64) error {
	const op = "markDeliveredPending"

	return e.exec.Execute(ctx, op, func(step *Step) error {
		if !e.roles.HasRole(ctx, caller, domain.RoleLogistics) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleLogistics.String())
		}
		lc, err := e.load(ctx, op, lcID)
		if err != nil {
			return err
		}
		if err := requireStatus(op, lc, domain.LCShipped); err != nil {
			return err
		}
		return e.transition(ctx, step, op, lc, domain.LCDeliveredPending)
	})
}

// ConfirmDelivered accepts either the LC's buyer or any bank.
func (e *LetterOfCreditEngine) ConfirmDelivered(ctx context.Context, caller string, lcID uint64) error {
	const op = "confirmDelivered"

	return e.exec.Execute(ctx, op, func(step *Step) error {
		isBank := e.roles.HasRole(ctx, caller, domain.RoleBank)
		if !isBank && !e.roles.HasRole(ctx, caller, domain.RoleImporter) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, "IMPORTER or BANK")
		}
		lc, err := e.load(ctx, op, lcID)
		if err != nil {
			return err
		}
		if !isBank && !sameAccount(lc.Buyer, caller) {
			return domain.Reject(op, domain.ErrUnauthorized, "buyer", caller, lc.Buyer)
		}
		if err := requireStatus(op, lc, domain.LCDeliveredPending); err != nil {
			return err
		}
		return e.transition(ctx, step, op, lc, domain.LCDeliveredConfirmed)
	})
}

func (e *LetterOfCreditEngine) RaiseDispute(ctx context.Context, caller string, lcID uint64) error {
	const op = "raiseDispute"

	return e.exec.Execute(ctx, op, func(step *Step) error {
		if !e.roles.HasRole(ctx, caller, domain.RoleImporter) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleImporter.String())
		}
		lc, err := e.load(ctx, op, lcID)
		if err != nil {
			return err
		}
		if !sameAccount(lc.Buyer, caller) {
			return domain.Reject(op, domain.ErrUnauthorized, "buyer", caller, lc.Buyer)
		}
		if !lc.Status.Disputable() {
			return domain.Reject(op, domain.ErrInvalidState, "status", lc.Status.String(),
				"SHIPPED, DELIVERED_PENDING or DELIVERED_CONFIRMED")
		}

		lc.DisputeRaised = true
		return e.transition(ctx, step, op, lc, domain.LCUnderReview)
	})
}

// ResolveDispute resumes the payment path when approve is true and cancels
// the LC for good otherwise.
func (e *LetterOfCreditEngine) ResolveDispute(ctx context.Context, caller string, lcID uint64, approve bool) error {
	const op = "resolveDispute"

	return e.exec.Execute(ctx, op, func(step *Step) error {
		if !e.roles.HasRole(ctx, caller, domain.RoleBank) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleBank.String())
		}
		lc, err := e.load(ctx, op, lcID)
		if err != nil {
			return err
		}
		if err := requireStatus(op, lc, domain.LCUnderReview); err != nil {
			return err
		}

		to := domain.LCCancelled
		if approve {
			to = domain.LCDeliveredConfirmed
		}
		return e.transition(ctx, step, op, lc, to)
	})
}

// ReleasePayment pays the seller exactly once. The released flag and the PAID
// status are written before the token transfer, inside the same serialized
// step, and are rolled back if the transfer fails.
func (e *LetterOfCreditEngine) ReleasePayment(ctx context.Context, caller string, lcID uint64) error {
	const op = "releasePayment"

	return e.exec.Execute(ctx, op, func(step *Step) error {
		if !e.roles.HasRole(ctx, caller, domain.RoleBank) {
			return domain.Reject(op, domain.ErrUnauthorized, "caller", caller, domain.RoleBank.String())
		}
		lc, err := e.load(ctx, op, lcID)
		if err != nil {
			return err
		}
		if lc.Released {
			return domain.Reject(op, domain.ErrAlreadyReleased, "released", "true", "false")
		}
		if err := requireStatus(op, lc, domain.LCDeliveredConfirmed); err != nil {
			return err
		}
		if err := e.checkFunds(ctx, op, lc); err != nil {
			return err
		}

		now := e.exec.Now()
		settlement := &domain.Settlement{
			LCID:      lc.ID,
			From:      lc.Buyer,
			To:        lc.Seller,
			Amount:    lc.Amount,
			SettledAt: now,
		}
		if err := e.settlements.Save(ctx, settlement); err != nil {
			return domain.Reject(op, domain.ErrAlreadyReleased, "settlement", err.Error(), "")
		}
		lc.Released = true
		if err := e.transition(ctx, step, op, lc, domain.LCPaid); err != nil {
			e.discardSettlement(ctx, lc.ID)
			return err
		}

		if err := e.token.TransferFrom(ctx, e.account, lc.Buyer, lc.Seller, lc.Amount); err != nil {
			e.rollbackRelease(ctx, lc)
			return domain.Reject(op, transferKind(err), "transfer", err.Error(), "")
		}

		step.Emit(domain.NewEvent(domain.EventPaymentReleased, now).
			With("lc_id", formatID(lc.ID)).
			With("from", lc.Buyer).
			With("to", lc.Seller).
			With("amount", lc.Amount.String()))
		step.AfterCommit(func() {
			// The histogram is approximate; the ledger keeps the exact amount.
			amount, exact := lc.Amount.Float64()
			e.exec.metrics.RecordSettlement(amount)
			if !exact {
				e.logger.DebugContext(ctx, "Settlement amount rounded for metrics",
					slog.Uint64("lc_id", lc.ID),
					slog.String("amount", lc.Amount.String()))
			}
			e.logger.InfoContext(ctx, "Payment released",
				slog.Uint64("lc_id", lc.ID),
				slog.String("seller", lc.Seller),
				slog.String("amount", lc.Amount.String()))
		})
		return nil
	})
}

func (e *LetterOfCreditEngine) checkFunds(ctx context.Context, op string, lc *domain.LetterOfCredit) error {
	allowance, err := e.token.Allowance(ctx, lc.Buyer, e.account)
	if err != nil {
		return fmt.Errorf("%s: read allowance: %w", op, err)
	}
	if allowance.LessThan(lc.Amount) {
		return domain.Reject(op, domain.ErrInsufficientAllowance, "allowance", allowance.String(), lc.Amount.String())
	}
	balance, err := e.token.BalanceOf(ctx, lc.Buyer)
	if err != nil {
		return fmt.Errorf("%s: read balance: %w", op, err)
	}
	if balance.LessThan(lc.Amount) {
		return domain.Reject(op, domain.ErrInsufficientFunds, "balance", balance.String(), lc.Amount.String())
	}
	return nil
}

func (e *LetterOfCreditEngine) rollbackRelease(ctx context.Context, lc *domain.LetterOfCredit) {
	lc.Released = false
	lc.Status = domain.LCDeliveredConfirmed
	if err := e.lcs.Update(ctx, lc); err != nil {
		e.logger.ErrorContext(ctx, "Failed to roll back release",
			slog.Uint64("lc_id", lc.ID),
			slog.String("error", err.Error()))
	}
	e.discardSettlement(ctx, lc.ID)
}

func (e *LetterOfCreditEngine) discardSettlement(ctx context.Context, lcID uint64) {
	if err := e.settlements.Delete(ctx, lcID); err != nil {
		e.logger.ErrorContext(ctx, "Failed to discard staged settlement",
			slog.Uint64("lc_id", lcID),
			slog.String("error", err.Error()))
	}
}

// transition writes lc with its new status. Commit-time effects are queued
// on step so a later failure in the same command publishes nothing.
func (e *LetterOfCreditEngine) transition(ctx context.Context, step *Step, op string, lc *domain.LetterOfCredit, to domain.LCStatus) error {
	from := lc.Status
	if !domain.CanTransition(from, to) {
		return domain.Reject(op, domain.ErrInvalidState, "status", from.String(), to.String())
	}

	lc.Status = to
	lc.UpdatedAt = e.exec.Now()
	if err := e.lcs.Update(ctx, lc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	step.Emit(domain.NewEvent(domain.EventLCStatusChanged, lc.UpdatedAt).
		With("lc_id", formatID(lc.ID)).
		With("old_status", from.String()).
		With("new_status", to.String()))
	step.AfterCommit(func() {
		e.exec.metrics.RecordTransition(from.String(), to.String())
		e.logger.InfoContext(ctx, "Letter of credit status changed",
			slog.Uint64("lc_id", lc.ID),
			slog.String("op", op),
			slog.String("old_status", from.String()),
			slog.String("new_status", to.String()))
	})
	return nil
}

func (e *LetterOfCreditEngine) GetLC(ctx context.Context, lcID uint64) (*domain.LetterOfCredit, error) {
	var lc *domain.LetterOfCredit
	err := e.exec.View(ctx, func() error {
		var err error
		lc, err = e.load(ctx, "getLC", lcID)
		return err
	})
	return lc, err
}

func (e *LetterOfCreditEngine) ListLCs(ctx context.Context) ([]*domain.LetterOfCredit, error) {
	var lcs []*domain.LetterOfCredit
	err := e.exec.View(ctx, func() error {
		var err error
		lcs, err = e.lcs.List(ctx)
		return err
	})
	return lcs, err
}

func (e *LetterOfCreditEngine) ListLCsByStatus(ctx context.Context, status domain.LCStatus) ([]*domain.LetterOfCredit, error) {
	var lcs []*domain.LetterOfCredit
	err := e.exec.View(ctx, func() error {
		var err error
		lcs, err = e.lcs.GetByStatus(ctx, status)
		return err
	})
	return lcs, err
}

func (e *LetterOfCreditEngine) LCCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := e.exec.View(ctx, func() error {
		var err error
		count, err = e.lcs.Count(ctx)
		return err
	})
	return count, err
}

func (e *LetterOfCreditEngine) ApprovalDeadline() time.Duration {
	return domain.ApprovalDeadline
}

// ApprovalTimeLeft is zero once the SLA has passed or the LC left OPENED.
func (e *LetterOfCreditEngine) ApprovalTimeLeft(ctx context.Context, lcID uint64) (time.Duration, error) {
	var left time.Duration
	err := e.exec.View(ctx, func() error {
		lc, err := e.load(ctx, "approvalTimeLeft", lcID)
		if err != nil {
			return err
		}
		if lc.Status == domain.LCOpened {
			left = validator.TimeLeft(lc.OpenedAt, e.exec.Now(), domain.ApprovalDeadline)
		}
		return nil
	})
	return left, err
}

func (e *LetterOfCreditEngine) Settlement(ctx context.Context, lcID uint64) (*domain.Settlement, error) {
	var settlement *domain.Settlement
	err := e.exec.View(ctx, func() error {
		var err error
		settlement, err = e.settlements.GetByLCID(ctx, lcID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Reject("settlement", domain.ErrNotFound, "lc_id", formatID(lcID), "")
		}
		return err
	})
	return settlement, err
}

func (e *LetterOfCreditEngine) load(ctx context.Context, op string, lcID uint64) (*domain.LetterOfCredit, error) {
	lc, err := e.lcs.GetByID(ctx, lcID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Reject(op, domain.ErrNotFound, "lc_id", formatID(lcID), "")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lc, nil
}

func requireStatus(op string, lc *domain.LetterOfCredit, want domain.LCStatus) error {
	if lc.Status != want {
		return domain.Reject(op, domain.ErrInvalidState, "status", lc.Status.String(), want.String())
	}
	return nil
}

func transferKind(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientAllowance):
		return domain.ErrInsufficientAllowance
	case errors.Is(err, domain.ErrInsufficientFunds):
		return domain.ErrInsufficientFunds
	default:
		return err
	}
}

func sameAccount(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
