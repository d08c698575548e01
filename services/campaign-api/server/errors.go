package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Mutter0815/blockmail/internal/campaign"
	"github.com/Mutter0815/blockmail/internal/editor"
)

// statusOf maps domain errors to HTTP statuses. Anything unknown is a 500.
func statusOf(err error) int {
	switch {
	case campaign.IsNotFound(err), errors.Is(err, editor.ErrSessionNotFound):
		return http.StatusNotFound
	case campaign.IsValidation(err),
		errors.Is(err, editor.ErrUnknownComponent),
		errors.Is(err, editor.ErrAttributeNotFound):
		return http.StatusBadRequest
	case errors.Is(err, campaign.ErrAlreadySent), errors.Is(err, editor.ErrNotEditing):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, event string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		reqLog(c).Errorw(event, "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	reqLog(c).Debugw(event, "status", status, "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}
