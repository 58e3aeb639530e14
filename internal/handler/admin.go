package handler

import (
	"net/http"

	"modelgate/internal/model"
	"modelgate/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.admin.CacheStats())
}

// InvalidateCache DELETE /api/admin/cache/:namespace
func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	n, err := h.admin.InvalidateCache(c.Param("namespace"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespace": c.Param("namespace"), "removed": n})
}

func (h *AdminHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.admin.Providers()})
}

// AssignPlan PUT /api/admin/users/:id/plan
func (h *AdminHandler) AssignPlan(c *gin.Context) {
	var req model.AssignPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	plan, err := h.admin.AssignPlan(c.Request.Context(), c.Param("id"), req.Tier)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": c.Param("id"), "plan": plan})
}
