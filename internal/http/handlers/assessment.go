package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	"github.com/yungbote/wellchat-backend/internal/http/response"
	"github.com/yungbote/wellchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/wellchat-backend/internal/services"
)

type AssessmentHandler struct {
	engine  services.EngineService
	control services.ControlService
}

func NewAssessmentHandler(engine services.EngineService, control services.ControlService) *AssessmentHandler {
	return &AssessmentHandler{engine: engine, control: control}
}

type turnRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// POST /api/assessment/turns
func (h *AssessmentHandler) PostTurn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(assessment.CodeValidation), errors.New("invalid request body"))
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		response.RespondError(c, http.StatusBadRequest, string(assessment.CodeValidation), errors.New("text is required"))
		return
	}
	if req.MessageID == "" {
		req.MessageID = c.GetHeader("Idempotency-Key")
	}
	out := h.engine.ProcessTurn(c.Request.Context(), services.TurnInput{
		UserID:    ctxutil.UserID(c.Request.Context()),
		MessageID: req.MessageID,
		Text:      req.Text,
	})
	response.RespondOK(c, out)
}

// GET /api/assessment/phq9/conversational/status
func (h *AssessmentHandler) GetStatus(c *gin.Context) {
	st, err := h.control.GetStatus(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, st)
}

// GET /api/assessment/phq9/conversational/history
func (h *AssessmentHandler) GetHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 10)
	if !ok {
		return
	}
	includeCancelled, ok := queryBool(c, "include_cancelled")
	if !ok {
		return
	}
	records, err := h.control.GetHistory(c.Request.Context(), ctxutil.UserID(c.Request.Context()), services.HistoryQuery{
		Limit:            limit,
		IncludeCancelled: includeCancelled,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assessments": records, "count": len(records)})
}

// GET /api/assessment/phq9/conversational/latest
func (h *AssessmentHandler) GetLatest(c *gin.Context) {
	records, err := h.control.GetHistory(c.Request.Context(), ctxutil.UserID(c.Request.Context()), services.HistoryQuery{Limit: 1})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	if len(records) == 0 {
		response.RespondDomainError(c, assessment.NewError(assessment.CodeNotFound, "PHQ9.Latest", "no completed assessment", nil))
		return
	}
	response.RespondOK(c, records[0])
}

// DELETE /api/assessment/phq9/conversational/cancel
func (h *AssessmentHandler) Cancel(c *gin.Context) {
	rec, err := h.control.Cancel(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"success":       true,
		"assessment_id": rec.ID,
		"answered":      rec.CompletedCount(),
	})
}

// GET /api/assessment/summary
func (h *AssessmentHandler) GetSummary(c *gin.Context) {
	sum, err := h.control.GetSummary(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, sum)
}

// GET /api/assessment/risk-alert
func (h *AssessmentHandler) GetRiskAlert(c *gin.Context) {
	alert, err := h.control.GetRiskAlert(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, alert)
}

// GET /api/assessment/detections
func (h *AssessmentHandler) ListDetections(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	onlyPositive, ok := queryBool(c, "only_positive")
	if !ok {
		return
	}
	rows, err := h.control.ListDetections(c.Request.Context(), ctxutil.UserID(c.Request.Context()), limit, onlyPositive)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"detections": rows, "count": len(rows)})
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 100 {
		response.RespondError(c, http.StatusBadRequest, string(assessment.CodeValidation), errors.New(key+" must be an integer between 1 and 100"))
		return 0, false
	}
	return n, true
}

func queryBool(c *gin.Context, key string) (bool, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, string(assessment.CodeValidation), errors.New(key+" must be a boolean"))
		return false, false
	}
	return v, true
}
