package handler

import (
	"errors"
	"net/http"
	"strconv"

	"modelgate/internal/admission"
	"modelgate/internal/dispatch"
	"modelgate/internal/middleware"
	"modelgate/internal/model"
	"modelgate/internal/personalize"
	"modelgate/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type GatewayHandler struct {
	gateway *service.GatewayService
}

func NewGatewayHandler(gateway *service.GatewayService) *GatewayHandler {
	return &GatewayHandler{gateway: gateway}
}

// Chat POST /api/v1/chat
func (h *GatewayHandler) Chat(c *gin.Context) {
	var req model.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	req.UserID = middleware.GetUserID(c)
	req.APIKeyID = middleware.GetAPIKeyID(c)

	res, err := h.gateway.Chat(c.Request.Context(), &req)
	if err != nil {
		var exhausted *dispatch.ExhaustedError
		if errors.As(err, &exhausted) && res != nil {
			c.JSON(http.StatusBadGateway, res)
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Feedback POST /api/v1/feedback
func (h *GatewayHandler) Feedback(c *gin.Context) {
	var req model.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	fb, err := h.gateway.Feedback(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

// Recommendations GET /api/v1/recommendations?message=&limit=
func (h *GatewayHandler) Recommendations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "3"))
	rec, err := h.gateway.Recommend(c.Request.Context(), middleware.GetUserID(c), c.Query("message"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *GatewayHandler) Preferences(c *gin.Context) {
	prefs, err := h.gateway.Preferences(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if prefs == nil {
		prefs = []*model.UserModelPreference{}
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// Admission GET /api/v1/admission
func (h *GatewayHandler) Admission(c *gin.Context) {
	d, err := h.gateway.CheckAdmission(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Alerts GET /api/v1/alerts?since=YYYY-MM-DD
func (h *GatewayHandler) Alerts(c *gin.Context) {
	alerts, err := h.gateway.Alerts(c.Request.Context(), middleware.GetUserID(c), c.Query("since"))
	if err != nil {
		writeError(c, err)
		return
	}
	if alerts == nil {
		alerts = []*model.CostAlert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// writeError 将领域错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	var denied *admission.DeniedError
	switch {
	case errors.As(err, &denied):
		status := http.StatusTooManyRequests
		if denied.Gate == admission.GateSystem {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": denied.Reason, "gate": denied.Gate, "metrics": denied.Metrics})
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrMissingUser),
		errors.Is(err, service.ErrInvalidRandomness),
		errors.Is(err, service.ErrInvalidStrategy),
		errors.Is(err, personalize.ErrInvalidRating),
		errors.Is(err, service.ErrUnknownNamespace):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNoCandidateModel):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Errorf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
