package analytics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
	httperr "github.com/pulseboard-labs/pulseboard/internal/core/errors"
)

// RegisterRoutes registers all analytics API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/colleges/:college_id/analytics", s.HandleCollegeAnalytics)
	r.GET("/v1/colleges/:college_id/trends/:year_month", s.HandleCollegeTrend)
	r.GET("/v1/trainers/:trainer_id/analytics", s.HandleTrainerAnalytics)
	r.GET("/v1/trainers/:trainer_id/trends/:year_month", s.HandleTrainerTrend)

	r.POST("/v1/admin/cache/rebuild", s.HandleRebuild)
}

// HandleCollegeAnalytics handles GET /v1/colleges/:college_id/analytics
func (s *Service) HandleCollegeAnalytics(c *gin.Context) {
	resp, err := s.CollegeAnalytics(c.Request.Context(), c.Param("college_id"))
	if err != nil {
		writeAggregateError(c, "college", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleTrainerAnalytics handles GET /v1/trainers/:trainer_id/analytics
func (s *Service) HandleTrainerAnalytics(c *gin.Context) {
	resp, err := s.TrainerAnalytics(c.Request.Context(), c.Param("trainer_id"))
	if err != nil {
		writeAggregateError(c, "trainer", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCollegeTrend handles GET /v1/colleges/:college_id/trends/:year_month
func (s *Service) HandleCollegeTrend(c *gin.Context) {
	yearMonth, ok := parseYearMonth(c)
	if !ok {
		return
	}
	trend, err := s.CollegeTrend(c.Request.Context(), c.Param("college_id"), yearMonth)
	if err != nil {
		writeInternalError(c, "Failed to read trend record", err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

// HandleTrainerTrend handles GET /v1/trainers/:trainer_id/trends/:year_month
func (s *Service) HandleTrainerTrend(c *gin.Context) {
	yearMonth, ok := parseYearMonth(c)
	if !ok {
		return
	}
	trend, err := s.TrainerTrend(c.Request.Context(), c.Param("trainer_id"), yearMonth)
	if err != nil {
		writeInternalError(c, "Failed to read trend record", err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

// HandleRebuild handles POST /v1/admin/cache/rebuild. The replay is
// best-effort per session; the report carries per-session failures.
func (s *Service) HandleRebuild(c *gin.Context) {
	report, err := s.Rebuild(c.Request.Context())
	if err != nil {
		writeInternalError(c, "Cache rebuild failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseYearMonth(c *gin.Context) (string, bool) {
	yearMonth := c.Param("year_month")
	if _, err := time.Parse("2006-01", yearMonth); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid year-month, expected YYYY-MM",
			Details:   yearMonth,
		})
		return "", false
	}
	return yearMonth, true
}

func writeAggregateError(c *gin.Context, entity string, err error) {
	if errors.Is(err, docstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "No analytics recorded for this " + entity + " yet",
		})
		return
	}
	writeInternalError(c, "Failed to read analytics", err)
}

func writeInternalError(c *gin.Context, msg string, err error) {
	slog.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   msg,
		Details:   err.Error(),
	})
}
