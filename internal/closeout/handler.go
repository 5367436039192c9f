package closeout

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
	httperr "github.com/pulseboard-labs/pulseboard/internal/core/errors"
	"github.com/pulseboard-labs/pulseboard/internal/session"
)

var errAlreadyClosed = errors.New("session is already closed")

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgSessionMissing = "Session not found"
	msgAlreadyClosed  = "Session is already closed; compiled stats are immutable"
	msgCloseFailed    = "Failed to close session"
)

// CloseHandler handles POST /v1/sessions/:session_id/close. The body
// is the session's compiled stats.
func (s *Service) CloseHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	cs, err := s.parseStats(c)
	if err != nil {
		return // parseStats already wrote the response
	}

	sess, err := s.close(c.Request.Context(), sessionID, cs)
	if err != nil {
		s.writeCloseError(c, sessionID, err)
		return
	}

	slog.Info("Session closed and folded",
		"session_id", sessionID,
		"college_id", sess.CollegeID,
		"trainer_id", sess.AssignedTrainerID,
		"total_responses", cs.TotalResponses,
	)

	c.JSON(http.StatusOK, gin.H{
		"status":     "closed",
		"session_id": sessionID,
	})
}

func (s *Service) parseStats(c *gin.Context) (*session.CompiledStats, error) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1)

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgReadBodyFailed,
		})
		return nil, err
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		err := errors.New("request body too large")
		c.JSON(http.StatusRequestEntityTooLarge, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Request body exceeds maximum allowed size",
			Details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		})
		return nil, err
	}

	var cs session.CompiledStats
	dec := json.NewDecoder(bytes.NewReader(bodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&cs); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   msgInvalidJSON,
			Details:   err.Error(),
		})
		return nil, err
	}

	if cs.TotalResponses < 0 {
		err := errors.New("totalResponses must be >= 0")
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid compiled stats",
			Details:   err.Error(),
		})
		return nil, err
	}
	for rating, count := range cs.RatingDistribution {
		if count < 0 {
			err := errors.New("ratingDistribution counts must be >= 0")
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidJsonError,
				Message:   "Invalid compiled stats",
				Details:   map[string]interface{}{"rating": rating},
			})
			return nil, err
		}
	}

	return &cs, nil
}

func (s *Service) writeCloseError(c *gin.Context, sessionID string, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   msgSessionMissing,
			Details:   sessionID,
		})
	case errors.Is(err, errAlreadyClosed):
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpSessionStateError,
			Message:   msgAlreadyClosed,
			Details:   sessionID,
		})
	default:
		slog.Error("Session close failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgCloseFailed,
			Details:   err.Error(),
		})
	}
}
