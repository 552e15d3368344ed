package server

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/handler"
	"github.com/noah-isme/gema-evalsync/internal/middleware"
	"github.com/noah-isme/gema-evalsync/internal/repository"
	"github.com/noah-isme/gema-evalsync/internal/router"
	"github.com/noah-isme/gema-evalsync/internal/service"
	"github.com/noah-isme/gema-evalsync/pkg/ai"
	cloud "github.com/noah-isme/gema-evalsync/pkg/cloudinary"
)

const authRequestsPerMinute = 20

// Options carries the collaborators that vary between production and tests.
type Options struct {
	Evaluator ai.Evaluator
	Archive   service.FileArchive
	Logger    zerolog.Logger
}

// Server is the assembled development backend.
type Server struct {
	App      *fiber.App
	Pipeline *service.Pipeline

	evaluatorName string
}

// New wires repositories, services and handlers into a fiber application. The grading
// pipeline is created but not started.
func New(cfg config.Config, db *gorm.DB, opts Options) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}

	logger := opts.Logger
	evaluator := opts.Evaluator
	evaluatorName := "custom"
	if evaluator == nil {
		var err error
		evaluator, evaluatorName, err = NewEvaluator(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)

	grader := service.NewGrader(submissionRepo, evaluator, logger)
	pipeline := service.NewPipeline(grader, submissionRepo, cfg.GradingWorkers, cfg.GradingDelay, logger)

	authService := service.NewAuthService(userRepo, validate, cfg.JWTSecret, service.DefaultTokenTTL, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, submissionRepo, pipeline, validate, logger)
	submissionService := service.NewSubmissionService(assignmentRepo, submissionRepo, grader, pipeline, opts.Archive, logger)
	evaluationService := service.NewEvaluationService(evaluationRepo, validate, logger)
	exportService := service.NewExportService(assignmentRepo, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    100 << 20,

		DisableStartupMessage: true,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(authService, logger),
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		EvaluationHandler: handler.NewEvaluationHandler(evaluationService, submissionService, logger),
		ExportHandler:     handler.NewExportHandler(exportService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		Evaluator:         evaluatorName,
		AuthRateLimit:     authRequestsPerMinute,
	})

	return &Server{App: app, Pipeline: pipeline, evaluatorName: evaluatorName}, nil
}

// Start launches the grading workers.
func (s *Server) Start(ctx context.Context) error {
	return s.Pipeline.Start(ctx)
}

// Shutdown stops accepting requests and drains the grading workers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.App.ShutdownWithContext(ctx)
	s.Pipeline.Stop()
	return err
}

// NewEvaluator picks the OpenAI evaluator when a key is configured and the local heuristic
// otherwise. The returned name is reported by the health endpoint.
func NewEvaluator(cfg config.Config, logger zerolog.Logger) (ai.Evaluator, string, error) {
	if cfg.OpenAIAPIKey == "" {
		return ai.NewHeuristicEvaluator(), "heuristic", nil
	}

	evaluator, err := ai.NewOpenAIEvaluator(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create openai evaluator: %w", err)
	}
	return evaluator, "openai", nil
}

// NewArchive returns the Cloudinary archive when credentials are configured, or nil.
func NewArchive(cfg config.Config, logger zerolog.Logger) (service.FileArchive, error) {
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if !cloudCfg.Enabled() {
		return nil, nil
	}

	archive, err := cloud.New(cloudCfg, logger)
	if err != nil {
		return nil, err
	}
	return archive, nil
}

// EvaluatorName reports which grading backend is in use.
func (s *Server) EvaluatorName() string {
	return s.evaluatorName
}
