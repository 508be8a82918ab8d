package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/domain"
)

// handleEmergency runs an emergency request through the matching path and
// returns the summary.
func (s *Server) handleEmergency(c *gin.Context) {
	var req domain.EmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          "Invalid request body",
			"detail":         err.Error(),
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}

	summary, err := s.orchestrator.ProcessEmergencyRequest(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          err.Error(),
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}

	if s.cache != nil {
		if err := s.cache.SetSummary(c.Request.Context(), summary); err != nil {
			s.log.WithError(err).WithField("request_id", summary.RequestID).Warn("Failed to cache match summary")
		}
	}

	c.JSON(http.StatusOK, summary)
}

// handleGetMatches returns the persisted match records for a request.
func (s *Server) handleGetMatches(c *gin.Context) {
	requestID := c.Param("id")

	records, err := s.orchestrator.Matches(c.Request.Context(), requestID)
	if err != nil {
		s.log.WithError(err).WithField("request_id", requestID).Error("Failed to load matches")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          "Failed to load matches",
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error":          "No matches for request",
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": requestID,
		"matches":    records,
	})
}

// handleGetSummary returns the cached match summary for a request.
func (s *Server) handleGetSummary(c *gin.Context) {
	requestID := c.Param("id")

	if s.cache == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":          "Summary cache not configured",
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}

	summary, found, err := s.cache.GetSummary(c.Request.Context(), requestID)
	if err != nil {
		s.log.WithError(err).WithField("request_id", requestID).Error("Failed to read summary cache")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          "Failed to read summary",
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error":          "Summary not found or expired",
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

type donorResponseRequest struct {
	Response string `json:"response" binding:"required"`
}

// handleDonorResponse records a donor's accept or decline for a match.
func (s *Server) handleDonorResponse(c *gin.Context) {
	matchID := c.Param("id")

	var body donorResponseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          "Invalid request body",
			"detail":         err.Error(),
			"correlation_id": c.GetString("correlation_id"),
		})
		return
	}

	state := domain.ResponseState(strings.ToUpper(body.Response))
	rec, err := s.orchestrator.RecordDonorResponse(c.Request.Context(), matchID, state)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidResponse):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":          "Response must be ACCEPTED or DECLINED",
				"correlation_id": c.GetString("correlation_id"),
			})
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":          "Match not found",
				"correlation_id": c.GetString("correlation_id"),
			})
		case errors.Is(err, domain.ErrAlreadyResponded):
			c.JSON(http.StatusConflict, gin.H{
				"error":          "Match already has a response",
				"correlation_id": c.GetString("correlation_id"),
			})
		default:
			s.log.WithError(err).WithFields(logrus.Fields{
				"match_id": matchID,
			}).Error("Failed to record donor response")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":          "Failed to record response",
				"correlation_id": c.GetString("correlation_id"),
			})
		}
		return
	}

	c.JSON(http.StatusOK, rec)
}
