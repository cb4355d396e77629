package token

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/vault/internal/ledger"
	"github.com/congo-pay/vault/internal/middleware"
)

func setupTokenApp(t *testing.T, caller common.Address) *fiber.App {
	t.Helper()
	svc, _ := newTestService(t, ledger.NewInMemory())
	h := NewHandler(svc, nil)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		middleware.SetCaller(c, caller)
		return c.Next()
	})
	app.Post("/tokens", h.Create)
	app.Get("/tokens/:address", h.Get)
	app.Get("/creators/:address/tokens", h.ListByCreator)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestHandlerCreateAndLookup(t *testing.T) {
	app := setupTokenApp(t, alice)

	status, body := doJSON(t, app, fiber.MethodPost, "/tokens",
		`{"name":"Gold","symbol":"GLD","decimals":2,"initial_supply":"12345"}`)
	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, "123.45", body["total_supply_formatted"])
	require.Equal(t, alice.Hex(), body["creator"])

	addr := body["address"].(string)
	status, body = doJSON(t, app, fiber.MethodGet, "/tokens/"+addr, "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "GLD", body["symbol"])

	status, body = doJSON(t, app, fiber.MethodGet, "/creators/"+alice.Hex()+"/tokens", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, body["tokens"], 1)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	app := setupTokenApp(t, alice)

	status, _ := doJSON(t, app, fiber.MethodPost, "/tokens", `{"name":"Gold","symbol":"GLD","decimals":2,"initial_supply":"0"}`)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doJSON(t, app, fiber.MethodPost, "/tokens", `{"name":"Gold","symbol":"GLD","decimals":30,"initial_supply":"1"}`)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doJSON(t, app, fiber.MethodGet, "/tokens/not-an-address", "")
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doJSON(t, app, fiber.MethodGet, "/tokens/"+bob.Hex(), "")
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestHandlerRequiresCaller(t *testing.T) {
	app := setupTokenApp(t, common.Address{})
	status, _ := doJSON(t, app, fiber.MethodPost, "/tokens", `{"name":"Gold","symbol":"GLD","initial_supply":"1"}`)
	require.Equal(t, fiber.StatusUnauthorized, status)
}
