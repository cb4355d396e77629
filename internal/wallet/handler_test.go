package wallet

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/middleware"
)

type testClient struct {
	t   *testing.T
	app *fiber.App
}

func newTestClient(t *testing.T) (*testClient, ledger.Ledger) {
	t.Helper()
	led := ledger.NewInMemory()
	h := NewHandler(NewService(NewMemoryRepository(), led, nil, nil), nil)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if raw := c.Get("X-Test-Caller"); raw != "" {
			middleware.SetCaller(c, common.HexToAddress(raw))
		}
		return c.Next()
	})
	app.Post("/wallets", h.Create)
	app.Get("/wallets", h.List)
	app.Get("/wallets/:walletId", h.Get)
	app.Get("/wallets/:walletId/balances/:asset", h.Balance)
	app.Post("/wallets/:walletId/deposits", h.Deposit)
	app.Post("/wallets/:walletId/send", h.Send)
	app.Post("/wallets/:walletId/batch", h.Batch)
	app.Post("/wallets/:walletId/emergency-withdraw", h.EmergencyWithdraw)
	app.Put("/wallets/:walletId/spenders/:spender", h.SetSpender)
	app.Get("/wallets/:walletId/spenders/:spender", h.GetSpender)
	app.Put("/wallets/:walletId/owner", h.TransferOwnership)
	app.Get("/accounts/:address/balances/:asset", h.AccountBalance)
	return &testClient{t: t, app: app}, led
}

func (tc *testClient) do(caller common.Address, method, path, body string) (int, map[string]any) {
	tc.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if caller != (common.Address{}) {
		req.Header.Set("X-Test-Caller", caller.Hex())
	}
	resp, err := tc.app.Test(req)
	if err != nil {
		tc.t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			tc.t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestHandlerVaultLifecycle(t *testing.T) {
	tc, led := newTestClient(t)

	status, body := tc.do(ownerAddr, fiber.MethodPost, "/wallets", "")
	if status != fiber.StatusCreated {
		t.Fatalf("create: status %d", status)
	}
	id := body["id"].(string)
	vaultAddr := common.HexToAddress(body["address"].(string))
	ledger.SeedBalance(led, ledger.NativeAsset, vaultAddr, 1_000)
	base := "/wallets/" + id

	status, _ = tc.do(ownerAddr, fiber.MethodPut, base+"/spenders/"+spenderAddr.Hex(), `{"authorized":true,"daily_limit":"100"}`)
	if status != fiber.StatusOK {
		t.Fatalf("set spender: status %d", status)
	}

	status, body = tc.do(spenderAddr, fiber.MethodPost, base+"/send",
		fmt.Sprintf(`{"to":%q,"amount":"60","memo":"0x01"}`, payee.Hex()))
	if status != fiber.StatusCreated || body["total"] != "60" {
		t.Fatalf("send: status %d body %v", status, body)
	}

	status, body = tc.do(spenderAddr, fiber.MethodPost, base+"/send",
		fmt.Sprintf(`{"to":%q,"amount":"50"}`, payee.Hex()))
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for limit, got %d %v", status, body)
	}

	status, _ = tc.do(spenderAddr, fiber.MethodPost, base+"/emergency-withdraw", `{"asset":"native"}`)
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for spender emergency withdraw, got %d", status)
	}

	status, body = tc.do(ownerAddr, fiber.MethodPost, base+"/batch",
		fmt.Sprintf(`{"targets":[%q,%q],"amounts":["1","2"]}`, payee.Hex(), spenderAddr.Hex()))
	if status != fiber.StatusCreated || body["total"] != "3" {
		t.Fatalf("batch: status %d body %v", status, body)
	}

	status, _ = tc.do(ownerAddr, fiber.MethodPost, base+"/batch",
		fmt.Sprintf(`{"targets":[%q],"amounts":["1","2"]}`, payee.Hex()))
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for arity mismatch, got %d", status)
	}

	status, body = tc.do(ownerAddr, fiber.MethodGet, base+"/balances/native", "")
	if status != fiber.StatusOK || body["balance"] != "937" {
		t.Fatalf("balance: status %d body %v", status, body)
	}

	status, body = tc.do(ownerAddr, fiber.MethodGet, base+"/spenders/"+spenderAddr.Hex(), "")
	if status != fiber.StatusOK || body["spent_today"] != "60" || body["remaining"] != "40" {
		t.Fatalf("get spender: status %d body %v", status, body)
	}

	status, body = tc.do(ownerAddr, fiber.MethodPost, base+"/emergency-withdraw", `{}`)
	if status != fiber.StatusOK || body["total"] != "937" {
		t.Fatalf("emergency: status %d body %v", status, body)
	}

	status, body = tc.do(ownerAddr, fiber.MethodGet, "/accounts/"+ownerAddr.Hex()+"/balances/native", "")
	if status != fiber.StatusOK || body["balance"] != "937" {
		t.Fatalf("account balance: status %d body %v", status, body)
	}
}

func TestHandlerOwnershipAndErrors(t *testing.T) {
	tc, _ := newTestClient(t)

	status, _ := tc.do(common.Address{}, fiber.MethodPost, "/wallets", "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", status)
	}
	status, _ = tc.do(ownerAddr, fiber.MethodGet, "/wallets/unknown", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}

	_, body := tc.do(ownerAddr, fiber.MethodPost, "/wallets", "")
	base := "/wallets/" + body["id"].(string)

	status, _ = tc.do(ownerAddr, fiber.MethodPost, base+"/send", fmt.Sprintf(`{"to":%q,"amount":"5"}`, payee.Hex()))
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient balance, got %d", status)
	}
	status, _ = tc.do(ownerAddr, fiber.MethodPost, base+"/send", fmt.Sprintf(`{"to":%q,"amount":"1.5"}`, payee.Hex()))
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for malformed amount, got %d", status)
	}

	status, body = tc.do(ownerAddr, fiber.MethodPut, base+"/owner", fmt.Sprintf(`{"new_owner":%q}`, payee.Hex()))
	if status != fiber.StatusOK || body["owner"] != payee.Hex() {
		t.Fatalf("transfer ownership: status %d body %v", status, body)
	}
	status, _ = tc.do(ownerAddr, fiber.MethodPut, base+"/owner", fmt.Sprintf(`{"new_owner":%q}`, ownerAddr.Hex()))
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for previous owner, got %d", status)
	}

	_, body = tc.do(payee, fiber.MethodGet, "/wallets", "")
	if wallets := body["wallets"].([]any); len(wallets) != 1 {
		t.Fatalf("expected new owner to list the wallet, got %v", body)
	}
}
