package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/congo-pay/vault"

// Middleware wraps each request in a span and records request metrics under
// the matched route pattern. Spans go to the globally registered tracer
// provider and are dropped when none is installed.
func Middleware(m *Metrics) fiber.Handler {
	tracer := otel.Tracer(tracerName)
	return func(c *fiber.Ctx) error {
		start := time.Now()
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path(), trace.WithAttributes(
			attribute.String("http.method", c.Method()),
		))
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		route := c.Route().Path
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		m.ObserveRequest(route, c.Method(), status, time.Since(start))
		return err
	}
}
