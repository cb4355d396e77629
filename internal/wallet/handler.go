package wallet

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gofiber/fiber/v2"
	"github.com/holiman/uint256"

	"github.com/congo-pay/vault/internal/amount"
	"github.com/congo-pay/vault/internal/custody"
	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/middleware"
	"github.com/congo-pay/vault/internal/observability"
)

// Handler exposes wallet and vault HTTP endpoints.
type Handler struct {
	service *Service
	metrics *observability.Metrics
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{service: service, metrics: metrics}
}

type walletResponse struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	CreatedAt string `json:"created_at"`
}

type transferResponse struct {
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Payload string `json:"payload,omitempty"`
}

type receiptResponse struct {
	TransactionID string             `json:"transaction_id"`
	Vault         string             `json:"vault"`
	Asset         string             `json:"asset"`
	Total         string             `json:"total"`
	Transfers     []transferResponse `json:"transfers"`
	CompletedAt   string             `json:"completed_at"`
}

type spenderResponse struct {
	Spender     string `json:"spender"`
	Authorized  bool   `json:"authorized"`
	DailyLimit  string `json:"daily_limit"`
	SpentToday  string `json:"spent_today"`
	Remaining   string `json:"remaining"`
	PeriodStart string `json:"period_start"`
}

func toWalletResponse(w Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		Address:   w.Address.Hex(),
		Owner:     w.Owner.Hex(),
		CreatedAt: w.CreatedAt.Format(time.RFC3339Nano),
	}
}

func toReceiptResponse(r custody.Receipt) receiptResponse {
	transfers := make([]transferResponse, 0, len(r.Transfers))
	for _, t := range r.Transfers {
		tr := transferResponse{To: t.To.Hex(), Amount: t.Amount.Dec()}
		if len(t.Payload) > 0 {
			tr.Payload = hexutil.Encode(t.Payload)
		}
		transfers = append(transfers, tr)
	}
	return receiptResponse{
		TransactionID: r.TransactionID,
		Vault:         r.Vault.Hex(),
		Asset:         r.Asset.Hex(),
		Total:         r.Total().Dec(),
		Transfers:     transfers,
		CompletedAt:   r.CompletedAt.Format(time.RFC3339Nano),
	}
}

func toSpenderResponse(a custody.SpenderAuthorization) spenderResponse {
	return spenderResponse{
		Spender:     a.Spender.Hex(),
		Authorized:  a.Authorized,
		DailyLimit:  a.DailyLimit.Dec(),
		SpentToday:  a.SpentToday.Dec(),
		Remaining:   a.Remaining().Dec(),
		PeriodStart: a.PeriodStart.Format(time.RFC3339Nano),
	}
}

// Create provisions a vault owned by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	wallet, err := h.service.Create(c.UserContext(), caller)
	if err != nil {
		return h.fail("create_wallet", err)
	}
	h.metrics.RecordOperation("create_wallet", "ok")
	return c.Status(http.StatusCreated).JSON(toWalletResponse(wallet))
}

// List returns the caller's vaults.
func (h *Handler) List(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	wallets, err := h.service.ListByOwner(c.UserContext(), caller)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toWalletResponse(w))
	}
	return c.JSON(fiber.Map{"owner": caller.Hex(), "wallets": out})
}

// Get returns vault metadata with the live owner.
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("walletId")
	wallet, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	v, err := h.service.Vault(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	wallet.Owner = v.Owner()
	resp := toWalletResponse(wallet)
	spenders := v.Spenders()
	list := make([]spenderResponse, 0, len(spenders))
	for _, s := range spenders {
		list = append(list, toSpenderResponse(s))
	}
	return c.JSON(fiber.Map{"wallet": resp, "spenders": list})
}

// Balance returns the vault balance of one asset.
func (h *Handler) Balance(c *fiber.Ctx) error {
	asset, err := parseAsset(c.Params("asset"))
	if err != nil {
		return err
	}
	v, err := h.service.Vault(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	balance, err := v.Balance(c.UserContext(), asset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"wallet_id": c.Params("walletId"),
		"vault":     v.Address().Hex(),
		"asset":     asset.Hex(),
		"balance":   balance.Dec(),
		"timestamp": h.service.now().Format(time.RFC3339Nano),
	})
}

// AccountBalance returns any holder's ledger balance of an asset.
func (h *Handler) AccountBalance(c *fiber.Ctx) error {
	holder, err := ledger.ParseAddress(c.Params("address"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err := parseAsset(c.Params("asset"))
	if err != nil {
		return err
	}
	balance, err := h.service.HolderBalance(c.UserContext(), asset, holder)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"address":   holder.Hex(),
		"asset":     asset.Hex(),
		"balance":   balance.Dec(),
		"timestamp": h.service.now().Format(time.RFC3339Nano),
	})
}

type depositRequest struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// Deposit moves funds from the caller into the vault.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		return err
	}
	value, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	receipt, err := h.service.Deposit(c.UserContext(), c.Params("walletId"), caller, asset, value, req.ClientTxID)
	if err != nil {
		return h.fail("deposit", err)
	}
	h.metrics.RecordOperation("deposit", "ok")
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

type sendRequest struct {
	Asset      string `json:"asset"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo"`
	ClientTxID string `json:"client_tx_id"`
}

// Send pays out a single transfer from the vault.
func (h *Handler) Send(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		return err
	}
	to, err := ledger.ParseAddress(req.To)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	value, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	memo, err := parsePayload(req.Memo)
	if err != nil {
		return err
	}
	v, err := h.service.Vault(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	receipt, err := v.Send(c.UserContext(), caller, custody.SendInput{
		Asset: asset, To: to, Amount: value, ClientTxID: req.ClientTxID, Memo: memo,
	})
	if err != nil {
		return h.fail("send", err)
	}
	h.metrics.RecordOperation("send", "ok")
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

type batchRequest struct {
	Asset      string   `json:"asset"`
	Targets    []string `json:"targets"`
	Amounts    []string `json:"amounts"`
	Payloads   []string `json:"payloads"`
	ClientTxID string   `json:"client_tx_id"`
}

// Batch executes an all-or-nothing set of payouts. Omitting payloads is the
// same as sending an empty payload for every target.
func (h *Handler) Batch(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		return err
	}
	if req.Payloads == nil {
		req.Payloads = make([]string, len(req.Targets))
	}

	input := custody.BatchInput{
		Asset:      asset,
		Targets:    make([]common.Address, len(req.Targets)),
		Amounts:    make([]*uint256.Int, len(req.Amounts)),
		Payloads:   make([][]byte, len(req.Payloads)),
		ClientTxID: req.ClientTxID,
	}
	for i, raw := range req.Targets {
		if input.Targets[i], err = ledger.ParseAddress(raw); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	for i, raw := range req.Amounts {
		if input.Amounts[i], err = parseAmount(raw); err != nil {
			return err
		}
	}
	for i, raw := range req.Payloads {
		if input.Payloads[i], err = parsePayload(raw); err != nil {
			return err
		}
	}

	v, err := h.service.Vault(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	receipt, err := v.ExecuteBatch(c.UserContext(), caller, input)
	if err != nil {
		return h.fail("batch", err)
	}
	h.metrics.RecordOperation("batch", "ok")
	return c.Status(http.StatusCreated).JSON(toReceiptResponse(receipt))
}

type emergencyRequest struct {
	Asset string `json:"asset"`
}

// EmergencyWithdraw drains one asset to the owner.
func (h *Handler) EmergencyWithdraw(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req emergencyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		return err
	}
	v, err := h.service.Vault(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	receipt, err := v.EmergencyWithdraw(c.UserContext(), caller, asset)
	if err != nil {
		return h.fail("emergency_withdraw", err)
	}
	h.metrics.RecordOperation("emergency_withdraw", "ok")
	return c.JSON(toReceiptResponse(receipt))
}

type spenderRequest struct {
	Authorized bool   `json:"authorized"`
	DailyLimit string `json:"daily_limit"`
}

// SetSpender grants, updates or revokes a spender.
func (h *Handler) SetSpender(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	spender, err := ledger.ParseAddress(c.Params("spender"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var req spenderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	limit := new(uint256.Int)
	if strings.TrimSpace(req.DailyLimit) != "" {
		if limit, err = amount.ParseBase(req.DailyLimit); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	v, err := h.service.Vault(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	auth, err := v.SetAuthorizedSpender(c.UserContext(), caller, spender, req.Authorized, limit)
	if err != nil {
		return h.fail("set_spender", err)
	}
	h.metrics.RecordOperation("set_spender", "ok")
	return c.JSON(toSpenderResponse(auth))
}

// GetSpender returns one spender record.
func (h *Handler) GetSpender(c *fiber.Ctx) error {
	spender, err := ledger.ParseAddress(c.Params("spender"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.Vault(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	auth, ok := v.Authorization(spender)
	if !ok {
		return fiber.NewError(http.StatusNotFound, "spender not found")
	}
	return c.JSON(toSpenderResponse(auth))
}

type ownerRequest struct {
	NewOwner string `json:"new_owner"`
}

// TransferOwnership hands the vault to a new owner.
func (h *Handler) TransferOwnership(c *fiber.Ctx) error {
	caller, err := middleware.Caller(c)
	if err != nil {
		return err
	}
	var req ownerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	newOwner, err := ledger.ParseAddress(req.NewOwner)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	v, err := h.service.Vault(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	if err := v.TransferOwnership(c.UserContext(), caller, newOwner); err != nil {
		return h.fail("transfer_ownership", err)
	}
	h.metrics.RecordOperation("transfer_ownership", "ok")
	return c.JSON(fiber.Map{"vault": v.Address().Hex(), "owner": v.Owner().Hex()})
}

func (h *Handler) fail(operation string, err error) error {
	if errors.Is(err, ErrWalletNotFound) {
		h.metrics.RecordOperation(operation, "not_found")
	} else {
		h.metrics.RecordOperation(operation, custody.Code(err))
	}
	return httpError(err)
}

// httpError maps vault errors onto HTTP statuses.
func httpError(err error) error {
	if errors.Is(err, ErrWalletNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	status := http.StatusInternalServerError
	switch custody.Code(err) {
	case "unauthorized", "not_authorized":
		status = http.StatusForbidden
	case "limit_exceeded":
		status = http.StatusUnprocessableEntity
	case "insufficient_balance", "arity_mismatch", "invalid_amount", "invalid_address":
		status = http.StatusBadRequest
	case "duplicate_transaction":
		status = http.StatusConflict
	case "transfer_failed":
		status = http.StatusBadGateway
	}
	return fiber.NewError(status, err.Error())
}

// parseAsset accepts a token address, or "native" / empty for the native
// currency.
func parseAsset(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "native") {
		return ledger.NativeAsset, nil
	}
	addr, err := ledger.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fiber.NewError(http.StatusBadRequest, "invalid asset: "+err.Error())
	}
	return addr, nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	v, err := amount.ParseBase(raw)
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return v, nil
}

func parsePayload(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, "payload must be 0x-prefixed hex")
	}
	return b, nil
}
