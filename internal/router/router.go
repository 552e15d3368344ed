package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/handler"
	"github.com/noah-isme/gema-evalsync/internal/middleware"
	"github.com/noah-isme/gema-evalsync/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	EvaluationHandler *handler.EvaluationHandler
	ExportHandler     *handler.ExportHandler
	JWTMiddleware     fiber.Handler
	Evaluator         string
	AuthRateLimit     int
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	app.Get("/health", handler.HealthCheck(cfg, deps.Evaluator))
	app.Get(observability.MetricsPath, observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.AuthHandler != nil {
		auth := app.Group("/auth", middleware.RateLimit("auth", deps.AuthRateLimit, time.Minute))
		deps.AuthHandler.Register(auth)
	}

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(app.Group("/assignments", jwtMiddleware))
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(app.Group("/submissions", jwtMiddleware))
	}

	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.Register(app.Group("/evaluations", jwtMiddleware))
	}

	if deps.ExportHandler != nil {
		deps.ExportHandler.Register(app.Group("/export", jwtMiddleware))
	}
}
