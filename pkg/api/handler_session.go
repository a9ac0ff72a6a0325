package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tarsy-dev/tarsy/ent"
	"github.com/tarsy-dev/tarsy/ent/alertsession"
	"github.com/tarsy-dev/tarsy/pkg/history"
)

// sessionIDHandler handles GET /api/v1/session-id/:alert_id.
// Returns a null session_id when the alert id is unknown, so pollers can
// distinguish "not yet created" from transport errors.
func (s *Server) sessionIDHandler(c *gin.Context) {
	alertID := c.Param("alert_id")

	sessionID, err := s.store.GetSessionIDByAlertID(c.Request.Context(), alertID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusOK, SessionIDResponse{AlertID: alertID})
			return
		}
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionIDResponse{AlertID: alertID, SessionID: &sessionID})
}

// listSessionsHandler handles GET /api/v1/sessions.
func (s *Server) listSessionsHandler(c *gin.Context) {
	limit := 25
	offset := 0

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			badRequest(c, "invalid limit: must be 1-100")
			return
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "invalid offset: must be >= 0")
			return
		}
		offset = n
	}

	var status *alertsession.Status
	if v := c.Query("status"); v != "" {
		st := alertsession.Status(v)
		if err := alertsession.StatusValidator(st); err != nil {
			badRequest(c, "invalid status: "+v)
			return
		}
		status = &st
	}

	var alertType *string
	if v := c.Query("alert_type"); v != "" {
		alertType = &v
	}

	sessions, total, err := s.store.ListSessions(c.Request.Context(), status, alertType, limit, offset)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*ent.AlertSession{}
	}

	c.JSON(http.StatusOK, SessionListResponse{
		Sessions:   sessions,
		Pagination: Pagination{Total: total, Limit: limit, Offset: offset},
	})
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")

	session, err := s.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	stages, err := s.loadStageDetails(c, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionDetailResponse{Session: session, Stages: stages})
}

// loadStageDetails returns the session's top-level stage executions with
// the children of every parallel parent attached.
func (s *Server) loadStageDetails(c *gin.Context, sessionID string) ([]*StageDetail, error) {
	executions, err := s.store.GetStageExecutions(c.Request.Context(), sessionID)
	if err != nil {
		return nil, err
	}

	stages := make([]*StageDetail, 0, len(executions))
	for _, exec := range executions {
		detail := &StageDetail{StageExecution: exec}
		if exec.ParallelType != nil {
			children, err := s.store.GetChildStageExecutions(c.Request.Context(), exec.ID)
			if err != nil {
				return nil, err
			}
			detail.Children = children
		}
		stages = append(stages, detail)
	}
	return stages, nil
}

// cancelSessionHandler handles POST /api/v1/sessions/:id/cancel.
func (s *Server) cancelSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")

	if err := s.alertService.CancelSession(c.Request.Context(), sessionID); err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionActionResponse{
		SessionID: sessionID,
		Message:   "Session cancellation requested",
	})
}

// pauseSessionHandler handles POST /api/v1/sessions/:id/pause.
func (s *Server) pauseSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")

	if err := s.alertService.PauseSession(c.Request.Context(), sessionID); err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionActionResponse{
		SessionID: sessionID,
		Message:   "Session pause requested",
	})
}

// resumeSessionHandler handles POST /api/v1/sessions/:id/resume.
func (s *Server) resumeSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")

	if err := s.alertService.ResumeSession(c.Request.Context(), sessionID); err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionActionResponse{
		SessionID: sessionID,
		Message:   "Session queued for resumption",
	})
}
