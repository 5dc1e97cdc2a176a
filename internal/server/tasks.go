package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
)

// handleListCategories returns every category with its tasks. It never
// fails; the repository degrades to a placeholder instead.
func (s *Server) handleListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": s.repo.ListCategories(c.Request.Context())})
}

// handleListTasks returns all tasks as a flat list.
func (s *Server) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.repo.ListTasks(c.Request.Context())})
}

// handleCreateTask adds a task to an existing category.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req models.NewTask
	if !s.bindBody(c, &req) {
		return
	}

	task, err := s.repo.CreateTask(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "task": task})
}

// handleUpdateTask applies the fields present in the body.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var patch models.TaskPatch
	if !s.bindBody(c, &patch) {
		return
	}

	res, err := s.repo.UpdateTask(c.Request.Context(), id, patch)
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	body := gin.H{"success": true}
	if len(res.Ignored) > 0 {
		body["ignored"] = res.Ignored
	}
	c.JSON(http.StatusOK, body)
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.repo.DeleteTask(c.Request.Context(), id); err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// bindBody decodes a JSON body into dst. An empty body leaves dst unchanged.
func (s *Server) bindBody(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.logger.Info("malformed request body", slog.String("request_id", c.GetString(requestIDKey)), slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
	return false
}
