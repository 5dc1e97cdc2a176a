package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"taskboard/internal/migration"
	"taskboard/internal/models"
	"taskboard/internal/tasks"
)

// Repository is the task data surface the handlers depend on.
type Repository interface {
	Backend() string
	ListCategories(ctx context.Context) map[string]models.CategoryTasks
	ListTasks(ctx context.Context) []models.Task
	CreateTask(ctx context.Context, in models.NewTask) (models.Task, error)
	UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (tasks.UpdateResult, error)
	DeleteTask(ctx context.Context, id int64) error
	Migrate(ctx context.Context) (migration.Result, error)
}

// Server provides the HTTP API and the static dashboard.
type Server struct {
	engine    *gin.Engine
	repo      Repository
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(repo Repository, logger *slog.Logger, staticDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors())

	srv := &Server{
		engine:    router,
		repo:      repo,
		logger:    logger,
		staticDir: staticDir,
	}

	srv.registerRoutes()
	return srv
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.GET("/categories", s.handleListCategories)
		api.GET("/migrate", s.handleMigrate)

		taskRoutes := api.Group("/tasks")
		{
			taskRoutes.GET("", s.handleListTasks)
			taskRoutes.POST("", s.handleCreateTask)
			taskRoutes.PUT(":id", s.handleUpdateTask)
			taskRoutes.DELETE(":id", s.handleDeleteTask)
		}
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": s.repo.Backend()})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// statusFor maps repository errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tasks.ErrValidation),
		errors.Is(err, tasks.ErrCategoryNotFound),
		errors.Is(err, migration.ErrNoSourceData):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tasks.ErrNoDocumentStore):
		return http.StatusConflict
	case errors.Is(err, tasks.ErrStoreUnavailable),
		errors.Is(err, tasks.ErrIDExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.Request.Context(), level, "request failed",
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.String("path", c.FullPath()),
		slog.Int("status", status),
		slog.String("error", err.Error()))
	c.JSON(status, gin.H{"error": err.Error()})
}
