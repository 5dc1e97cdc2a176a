package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleMigrate copies the flat file into the document store. A store that
// is already migrated answers 200 with the reason instead of an error.
func (s *Server) handleMigrate(c *gin.Context) {
	res, err := s.repo.Migrate(c.Request.Context())
	if err != nil {
		s.respondError(c, statusFor(err), err)
		return
	}

	if res.Skipped {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"message":            "migration completed",
		"categoriesMigrated": res.CategoriesMigrated,
		"tasksMigrated":      res.TasksMigrated,
		"resumed":            res.Resumed,
		"runId":              res.RunID,
	})
}
