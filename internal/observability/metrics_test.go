package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(Middleware(m))
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "no")
	})

	for _, path := range []string{"/items/1", "/items/2", "/fail"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("app.Test %s: %v", path, err)
		}
		resp.Body.Close()
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/items/:id", "GET", "204")); got != 2 {
		t.Fatalf("expected 2 item requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/fail", "GET", "418")); got != 1 {
		t.Fatalf("expected 1 failed request, got %v", got)
	}
}

func TestHandlerExposesOperations(t *testing.T) {
	m := NewMetrics()
	m.RecordOperation("send", "ok")
	m.RecordOperation("send", "limit_exceeded")

	app := fiber.New()
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `vault_operations_total{operation="send",result="limit_exceeded"} 1`) {
		t.Fatalf("operation counter missing from exposition:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordOperation("send", "ok")
	m.ObserveRequest("/", "GET", 200, 0)
}
