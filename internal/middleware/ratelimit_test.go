package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type stubVerifier map[string]common.Address

func (s stubVerifier) Verify(token string) (common.Address, error) {
	addr, ok := s[token]
	if !ok {
		return common.Address{}, errors.New("unknown token")
	}
	return addr, nil
}

func limitedApp(limiter *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(JWTAuth(stubVerifier{"alice": alice, "bob": bob}))
	app.Post("/send", limiter.Middleware("send"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func hit(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/send", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimitWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	limiter := NewRateLimiter(cache, 2)
	fixed := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }
	app := limitedApp(limiter)

	for i := 0; i < 2; i++ {
		if status := hit(t, app, "alice"); status != fiber.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, status)
		}
	}
	if status := hit(t, app, "alice"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	if status := hit(t, app, "bob"); status != fiber.StatusCreated {
		t.Fatalf("limits are per caller, got %d", status)
	}

	fixed = fixed.Add(time.Minute)
	if status := hit(t, app, "alice"); status != fiber.StatusCreated {
		t.Fatalf("expected new window to admit, got %d", status)
	}
}

func TestRateLimitFallsBackToLocalBucket(t *testing.T) {
	app := limitedApp(NewRateLimiter(nil, 3))
	for i := 0; i < 3; i++ {
		if status := hit(t, app, "alice"); status != fiber.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, status)
		}
	}
	if status := hit(t, app, "alice"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 from local bucket, got %d", status)
	}
}

func TestJWTAuthRejectsBadTokens(t *testing.T) {
	app := limitedApp(NewRateLimiter(nil, 0))
	if status := hit(t, app, "mallory"); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/send", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", resp.StatusCode)
	}
}
