package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/vault/internal/config"
	"github.com/congo-pay/vault/internal/logging"
)

func TestServerRendersErrorsAsJSON(t *testing.T) {
	srv, err := New(config.Config{AppName: "VaultTest", AppEnv: "development", JWTSecret: "secret"}, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/wallets", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("expected error message")
	}
}

func TestServerHealthInDevelopment(t *testing.T) {
	srv, err := New(config.Config{AppName: "VaultTest", AppEnv: "development", JWTSecret: "secret"}, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
