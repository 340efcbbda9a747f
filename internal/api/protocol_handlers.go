package api

import (
	"context"
	"lc_escrow/internal/domain"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type GrantRoleRequest struct {
	Account string `json:"account"`
	Role    string `json:"role"`
}

type RolesResponse struct {
	Account string   `json:"account"`
	Roles   []string `json:"roles"`
}

func (h *APIHandler) GrantRoleHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req GrantRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, valid := domain.ParseRole(req.Role)
	if !valid {
		h.sendError(w, "unknown role "+req.Role, http.StatusBadRequest, "INVALID_INPUT")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := h.roles.GrantRole(ctx, caller, req.Account, role); err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendJSON(w, h.rolesOf(ctx, req.Account), http.StatusOK)
}

func (h *APIHandler) GetRolesHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.rolesOf(r.Context(), chi.URLParam(r, "account")), http.StatusOK)
}

func (h *APIHandler) rolesOf(ctx context.Context, account string) RolesResponse {
	names := h.roles.Roles(ctx, account).Names()
	if names == nil {
		names = []string{}
	}
	return RolesResponse{Account: account, Roles: names}
}

type CreateProductRequest struct {
	Name string `json:"name"`
}

func (h *APIHandler) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	product, err := h.products.CreateProduct(ctx, caller, req.Name)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendJSON(w, product, http.StatusCreated)
}

func (h *APIHandler) MarkProductDeliveredHandler(w http.ResponseWriter, r *http.Request) {
	h.productCommand(w, r, h.products.MarkDelivered)
}

func (h *APIHandler) ConfirmProductReceivedHandler(w http.ResponseWriter, r *http.Request) {
	h.productCommand(w, r, h.products.ConfirmReceived)
}

func (h *APIHandler) productCommand(w http.ResponseWriter, r *http.Request, command func(ctx context.Context, caller string, id uint64) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := command(ctx, caller, id); err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	product, err := h.products.GetProduct(ctx, id)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendJSON(w, product, http.StatusOK)
}

func (h *APIHandler) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendJSON(w, product, http.StatusOK)
}

func (h *APIHandler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListProducts(r.Context())
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	h.sendJSON(w, map[string]any{"products": products, "count": len(products)}, http.StatusOK)
}

type OpenLCRequest struct {
	ProductID uint64 `json:"product_id"`
	Seller    string `json:"seller"`
	Amount    string `json:"amount"`
}

type ResolveDisputeRequest struct {
	Approve *bool `json:"approve"`
}

// LCResponse adds the approval SLA view and, once paid, the settlement.
type LCResponse struct {
	*domain.LetterOfCredit
	ApprovalDeadlineAt      time.Time          `json:"approval_deadline_at"`
	ApprovalTimeLeftSeconds int64              `json:"approval_time_left_seconds"`
	Settlement              *domain.Settlement `json:"settlement,omitempty"`
}

func (h *APIHandler) OpenLCHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req OpenLCRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseDecimal(req.Amount)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	lc, err := h.engine.OpenLC(ctx, caller, req.ProductID, req.Seller, amount)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendLC(ctx, w, r, lc.ID, http.StatusCreated)
}

func (h *APIHandler) ApproveLCHandler(w http.ResponseWriter, r *http.Request) {
	h.lcCommand(w, r, h.engine.ApproveLC)
}

func (h *APIHandler) ConfirmShipmentHandler(w http.ResponseWriter, r *http.Request) {
	h.lcCommand(w, r, h.engine.ConfirmShipment)
}

func (h *APIHandler) MarkDeliveredPendingHandler(w http.ResponseWriter, r *http.Request) {
	h.lcCommand(w, r, h.engine.MarkDeliveredPending)
}

func (h *APIHandler) ConfirmDeliveredHandler(w http.ResponseWriter, r *http.Request) {
	h.lcCommand(w, r, h.engine.ConfirmDelivered)
}

func (h *APIHandler) RaiseDisputeHandler(w http.ResponseWriter, r *http.Request) {
	h.lcCommand(w, r, h.engine.RaiseDispute)
}

func (h *APIHandler) ReleasePaymentHandler(w http.ResponseWriter, r *http.Request) {
	h.lcCommand(w, r, h.engine.ReleasePayment)
}

func (h *APIHandler) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	var req ResolveDisputeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Approve == nil {
		h.sendError(w, "approve is required", http.StatusBadRequest, "INVALID_INPUT")
		return
	}
	h.lcCommand(w, r, func(ctx context.Context, caller string, id uint64) error {
		return h.engine.ResolveDispute(ctx, caller, id, *req.Approve)
	})
}

func (h *APIHandler) lcCommand(w http.ResponseWriter, r *http.Request, command func(ctx context.Context, caller string, id uint64) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := command(ctx, caller, id); err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendLC(ctx, w, r, id, http.StatusOK)
}

func (h *APIHandler) GetLCHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.sendLC(r.Context(), w, r, id, http.StatusOK)
}

func (h *APIHandler) ListLCsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		lcs []*domain.LetterOfCredit
		err error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, valid := domain.ParseLCStatus(raw)
		if !valid {
			h.sendError(w, "unknown status "+raw, http.StatusBadRequest, "INVALID_INPUT")
			return
		}
		lcs, err = h.engine.ListLCsByStatus(r.Context(), status)
	} else {
		lcs, err = h.engine.ListLCs(r.Context())
	}
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	if lcs == nil {
		lcs = []*domain.LetterOfCredit{}
	}
	h.sendJSON(w, map[string]any{"lcs": lcs, "count": len(lcs)}, http.StatusOK)
}

func (h *APIHandler) sendLC(ctx context.Context, w http.ResponseWriter, r *http.Request, id uint64, status int) {
	lc, err := h.engine.GetLC(ctx, id)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	left, err := h.engine.ApprovalTimeLeft(ctx, id)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	resp := LCResponse{
		LetterOfCredit:          lc,
		ApprovalDeadlineAt:      lc.ApprovalDeadlineAt(),
		ApprovalTimeLeftSeconds: int64(left / time.Second),
	}
	if lc.Released {
		if settlement, err := h.engine.Settlement(ctx, id); err == nil {
			resp.Settlement = settlement
		}
	}
	h.sendJSON(w, resp, status)
}

type TokenAmountRequest struct {
	Spender string `json:"spender,omitempty"`
	To      string `json:"to,omitempty"`
	Amount  string `json:"amount"`
}

type TokenAccountResponse struct {
	Account         string          `json:"account"`
	Symbol          string          `json:"symbol"`
	Balance         decimal.Decimal `json:"balance"`
	EscrowAllowance decimal.Decimal `json:"escrow_allowance"`
	EscrowSpender   string          `json:"escrow_spender"`
}

// ApproveTokenHandler sets the caller's allowance for spender, which defaults
// to the escrow engine's account.
func (h *APIHandler) ApproveTokenHandler(w http.ResponseWriter, r *http.Request) {
	h.tokenCommand(w, r, func(ctx context.Context, caller string, req TokenAmountRequest, amount decimal.Decimal) error {
		spender := req.Spender
		if spender == "" {
			spender = h.engine.Account()
		}
		return h.ledger.Approve(ctx, caller, spender, amount)
	})
}

func (h *APIHandler) TransferTokenHandler(w http.ResponseWriter, r *http.Request) {
	h.tokenCommand(w, r, func(ctx context.Context, caller string, req TokenAmountRequest, amount decimal.Decimal) error {
		return h.ledger.Transfer(ctx, caller, req.To, amount)
	})
}

func (h *APIHandler) MintTokenHandler(w http.ResponseWriter, r *http.Request) {
	h.tokenCommand(w, r, func(ctx context.Context, caller string, req TokenAmountRequest, amount decimal.Decimal) error {
		return h.ledger.Mint(ctx, caller, req.To, amount)
	})
}

func (h *APIHandler) tokenCommand(w http.ResponseWriter, r *http.Request, command func(ctx context.Context, caller string, req TokenAmountRequest, amount decimal.Decimal) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req TokenAmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseDecimal(req.Amount)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if err := command(ctx, caller, req, amount); err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendTokenAccount(ctx, w, r, caller)
}

func (h *APIHandler) TokenAccountHandler(w http.ResponseWriter, r *http.Request) {
	h.sendTokenAccount(r.Context(), w, r, chi.URLParam(r, "account"))
}

func (h *APIHandler) sendTokenAccount(ctx context.Context, w http.ResponseWriter, r *http.Request, account string) {
	balance, err := h.ledger.BalanceOf(ctx, account)
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	allowance, err := h.ledger.Allowance(ctx, account, h.engine.Account())
	if err != nil {
		h.sendDomainError(w, r, err)
		return
	}
	h.sendJSON(w, TokenAccountResponse{
		Account:         account,
		Symbol:          h.ledger.Symbol(),
		Balance:         balance,
		EscrowAllowance: allowance,
		EscrowSpender:   h.engine.Account(),
	}, http.StatusOK)
}
