package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the dashboard pages from the configured directory.
// Unknown non-API paths fall back to index.html.
func (s *Server) mountStatic() {
	s.engine.NoRoute(s.handleNotFound)

	if s.staticDir == "" {
		s.logger.Warn("static directory not configured; API only mode")
		return
	}
	info, err := os.Stat(s.staticDir)
	if err != nil || !info.IsDir() {
		s.logger.Warn("static directory missing", "path", s.staticDir, "error", err)
		s.staticDir = ""
		return
	}
	if _, err := os.Stat(filepath.Join(s.staticDir, "index.html")); err != nil {
		s.logger.Warn("index.html not found", "path", s.staticDir, "error", err)
	}
}

func (s *Server) handleNotFound(c *gin.Context) {
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api/") || s.staticDir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}

	// Cleaning against "/" drops any ".." so lookups stay inside staticDir.
	file := filepath.Join(s.staticDir, filepath.FromSlash(path.Clean("/"+p)))
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		c.File(file)
		return
	}

	index := filepath.Join(s.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(index)
}
