package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tarsy-dev/tarsy/pkg/services"
)

// submitAlertHandler handles POST /api/v1/alerts.
// Creates a session in "pending" status and returns immediately with the
// session id, or the existing session id when the alert is an active
// duplicate.
func (s *Server) submitAlertHandler(c *gin.Context) {
	var req SubmitAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	// Missing required fields and unknown alert types are 400; deeper
	// schema problems (bad runbook URL, oversized fields) are 422.
	if req.AlertType == "" {
		badRequest(c, "alert_type is required")
		return
	}
	if req.Runbook == "" {
		badRequest(c, "runbook is required")
		return
	}

	data := req.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	if req.Severity != "" {
		data["severity"] = req.Severity
	}
	if req.Timestamp != nil {
		data["timestamp"] = *req.Timestamp
	}

	result, err := s.alertService.SubmitAlert(c.Request.Context(), services.SubmitAlertInput{
		AlertType:  req.AlertType,
		RunbookURL: req.Runbook,
		Data:       data,
		Author:     req.Author,
	})
	if err != nil {
		var validErr *services.ValidationError
		if errors.As(err, &validErr) && validErr.Field == "alert_type" {
			badRequest(c, validErr.Error())
			return
		}
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
