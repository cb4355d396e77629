package routes

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/vault/internal/config"
	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/logging"
)

type harness struct {
	t   *testing.T
	app *fiber.App
}

func newHarness(t *testing.T, genesis ...config.Allocation) harness {
	t.Helper()
	cfg := config.Config{
		AppName:         "VaultTest",
		AppEnv:          "test",
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		ChallengeTTL:    time.Minute,
		IdempotencyTTL:  time.Minute,
		FactoryAddress:  common.HexToAddress("0x00000000000000000000000000000000000fac70"),
		Genesis:         genesis,
	}
	app := fiber.New()
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}))
	return harness{t: t, app: app}
}

func (h harness) do(method, path, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := h.app.Test(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(h.t, json.Unmarshal(raw, &out))
	} else {
		out["raw"] = string(raw)
	}
	return resp.StatusCode, out
}

func (h harness) login(key *ecdsa.PrivateKey) string {
	h.t.Helper()
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	status, challenge := h.do(fiber.MethodPost, "/api/v1/auth/challenge", "", map[string]string{"address": addr})
	require.Equal(h.t, fiber.StatusOK, status)

	sig, err := crypto.Sign(accounts.TextHash([]byte(challenge["message"].(string))), key)
	require.NoError(h.t, err)
	status, tokens := h.do(fiber.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"address":   addr,
		"signature": hexutil.Encode(sig),
	})
	require.Equal(h.t, fiber.StatusOK, status)
	return tokens["access_token"].(string)
}

func TestVaultLifecycleOverHTTP(t *testing.T) {
	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	spenderKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	ownerAddr := crypto.PubkeyToAddress(ownerKey.PublicKey)
	spenderAddr := crypto.PubkeyToAddress(spenderKey.PublicKey)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000beef1")

	h := newHarness(t, config.Allocation{Address: ownerAddr.Hex(), Amount: "1000"})
	ownerToken := h.login(ownerKey)
	spenderToken := h.login(spenderKey)

	status, _ := h.do(fiber.MethodPost, "/api/v1/wallets", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, created := h.do(fiber.MethodPost, "/api/v1/wallets", ownerToken, nil)
	require.Equal(t, fiber.StatusCreated, status)
	walletPath := "/api/v1/wallets/" + created["id"].(string)

	status, _ = h.do(fiber.MethodPost, walletPath+"/deposits", ownerToken, map[string]string{"amount": "400"})
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = h.do(fiber.MethodPut, walletPath+"/spenders/"+spenderAddr.Hex(), ownerToken, map[string]any{
		"authorized": true, "daily_limit": "100",
	})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(fiber.MethodPost, walletPath+"/send", spenderToken, map[string]string{
		"to": recipient.Hex(), "amount": "60",
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, body := h.do(fiber.MethodPost, walletPath+"/send", spenderToken, map[string]string{
		"to": recipient.Hex(), "amount": "50",
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, status, body)

	status, body = h.do(fiber.MethodPost, walletPath+"/emergency-withdraw", spenderToken, map[string]string{})
	require.Equal(t, fiber.StatusForbidden, status, body)

	status, body = h.do(fiber.MethodGet, walletPath+"/balances/native", ownerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "340", body["balance"])

	status, body = h.do(fiber.MethodGet, "/api/v1/accounts/"+ownerAddr.Hex()+"/balances/native", ownerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "600", body["balance"])

	status, body = h.do(fiber.MethodGet, "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, strings.Contains(body["raw"].(string), `vault_operations_total{operation="send",result="limit_exceeded"} 1`), body["raw"])
}

func TestTokenFactoryOverHTTP(t *testing.T) {
	creatorKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	h := newHarness(t)
	token := h.login(creatorKey)

	status, created := h.do(fiber.MethodPost, "/api/v1/tokens", token, map[string]any{
		"name": "Congo Franc", "symbol": "CGF", "decimals": 2, "initial_supply": "5000",
	})
	require.Equal(t, fiber.StatusCreated, status, created)
	address := created["address"].(string)

	status, body := h.do(fiber.MethodGet, "/api/v1/tokens/"+address, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "CGF", body["symbol"])

	creator := crypto.PubkeyToAddress(creatorKey.PublicKey).Hex()
	status, body = h.do(fiber.MethodGet, "/api/v1/creators/"+creator+"/tokens", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, body["tokens"], 1)

	status, body = h.do(fiber.MethodGet, "/api/v1/accounts/"+creator+"/balances/"+address, token, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "5000", body["balance"])
}

func TestSeedGenesisIsIdempotent(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	allocs := []config.Allocation{{Address: holder.Hex(), Asset: "native", Amount: "250"}}

	require.NoError(t, SeedGenesis(ctx, led, allocs, logging.Discard()))
	require.NoError(t, SeedGenesis(ctx, led, allocs, logging.Discard()))

	bal, err := led.Balance(ctx, ledger.NativeAsset, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(250), bal.Uint64())

	require.Error(t, SeedGenesis(ctx, led, []config.Allocation{{Address: "nope", Amount: "1"}}, logging.Discard()))
}

func TestSetupRequiresBackendsOutsideDevelopment(t *testing.T) {
	err := Setup(fiber.New(), Deps{Cfg: config.Config{AppEnv: "production"}, Logger: logging.Discard()})
	require.Error(t, err)
}
