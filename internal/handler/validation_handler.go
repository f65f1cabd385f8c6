package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ValidationHandler struct {
	validationService service.ValidationService
}

func NewValidationHandler(validationService service.ValidationService) *ValidationHandler {
	return &ValidationHandler{validationService: validationService}
}

func (h *ValidationHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/requests")
	{
		requests.POST("/:id/validate-receipt", middleware.RequireRole(model.RoleFinance), h.ValidateReceipt)
		requests.GET("/:id/validation", anyRole(), h.GetValidation)
	}
}

// ValidateReceipt runs receipt extraction and reconciliation for a request
func (h *ValidationHandler) ValidateReceipt(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	result, err := h.validationService.ValidateReceipt(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetValidation returns the stored validation record for a request
func (h *ValidationHandler) GetValidation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	result, err := h.validationService.GetValidation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
