package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath is where the dev server serves the scrape endpoint.
const MetricsPath = "/metrics"

// MetricsHandler serves the evalsync collectors (evalsync_server_requests_total,
// evalsync_server_evaluations_total and the client-side poll, busy and store counters when they
// share the process) together with the Go runtime metrics of the default registry.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
