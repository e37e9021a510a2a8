// Package handler exposes the turn and evaluation operations over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"talk-trainer-server/internal/model"
	"talk-trainer-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TrainerHandler binds the two engine operations plus health to gin routes.
type TrainerHandler struct {
	trainer    *service.TrainerService
	evaluation *service.EvaluationService
	logger     *zap.Logger
}

func NewTrainerHandler(trainer *service.TrainerService, evaluation *service.EvaluationService, logger *zap.Logger) *TrainerHandler {
	return &TrainerHandler{
		trainer:    trainer,
		evaluation: evaluation,
		logger:     logger.Named("TrainerHandler"),
	}
}

func (h *TrainerHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/turn", h.handleNextTurn)
		api.POST("/evaluation", h.handleEvaluation)
	}
	router.GET("/health", h.handleHealth)
}

type turnRequestBody struct {
	Scenario          model.ScenarioContext  `json:"scenario" binding:"required"`
	PersonaID         string                 `json:"persona_id"`
	PersonaRef        string                 `json:"persona_ref" binding:"required"`
	Transcript        model.Transcript       `json:"transcript"`
	LatestUserMessage string                 `json:"latest_user_message"`
	Language          string                 `json:"language"`
	Overrides         map[string]interface{} `json:"overrides"`
}

func (h *TrainerHandler) handleNextTurn(c *gin.Context) {
	var body turnRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	reply, err := h.trainer.NextTurn(c.Request.Context(), service.NextTurnInput{
		Scenario:          body.Scenario,
		PersonaID:         body.PersonaID,
		PersonaRef:        body.PersonaRef,
		Transcript:        body.Transcript,
		LatestUserMessage: body.LatestUserMessage,
		Language:          body.Language,
		Overrides:         body.Overrides,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

type evaluationRequestBody struct {
	SessionID  string                `json:"session_id" binding:"required"`
	Scenario   model.ScenarioContext `json:"scenario" binding:"required"`
	PersonaID  string                `json:"persona_id"`
	PersonaRef string                `json:"persona_ref" binding:"required"`
	Transcript model.Transcript      `json:"transcript" binding:"required"`
	Language   string                `json:"language"`
}

func (h *TrainerHandler) handleEvaluation(c *gin.Context) {
	var body evaluationRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.evaluation.Evaluate(c.Request.Context(), service.EvaluateInput{
		SessionID:  body.SessionID,
		Scenario:   body.Scenario,
		PersonaID:  body.PersonaID,
		PersonaRef: body.PersonaRef,
		Transcript: body.Transcript,
		Language:   body.Language,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TrainerHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service errors to HTTP statuses. Backend degradation never
// reaches this path; only caller mistakes and cancellations do.
func (h *TrainerHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; 499 in nginx terms, gin has no constant for it.
		c.Status(499)
	case errors.Is(err, model.ErrPersonaCacheNotLoaded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is starting up, try again shortly"})
	case errors.Is(err, model.ErrPersonaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		// Unclassified errors are collaborator failures; log the detail, keep it
		// out of the response body.
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
