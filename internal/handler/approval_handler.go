package handler

import (
	"errors"
	"io"
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvers := middleware.RequireRole(model.RoleApproverLevel1, model.RoleApproverLevel2)
	reviewers := middleware.RequireRole(model.RoleApproverLevel1, model.RoleApproverLevel2, model.RoleFinance)

	requests := router.Group("/requests")
	{
		requests.GET("/pending", reviewers, h.ListPending)
		requests.GET("/reviewed", approvers, h.ListReviewed)
		requests.PATCH("/:id/approve", approvers, h.ApproveRequest)
		requests.PATCH("/:id/reject", approvers, h.RejectRequest)
	}
}

// ListPending returns requests still awaiting an approval decision
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	params := pagination.Parse(c)

	requests, total, err := h.approvalService.ListPending(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.List(http.StatusOK, requests, total, params.Page, params.Limit))
}

// ListReviewed returns finalized requests; ?mine=true scopes to the caller's decisions
func (h *ApprovalHandler) ListReviewed(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	params := pagination.Parse(c)
	mine := c.Query("mine") == "true"

	requests, total, err := h.approvalService.ListReviewed(c.Request.Context(), userID, mine, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.List(http.StatusOK, requests, total, params.Page, params.Limit))
}

type decisionBody struct {
	Comment string `json:"comment"`
}

// ApproveRequest records the caller's approval at their role's level
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	h.decide(c, service.DecisionApprove)
}

// RejectRequest records the caller's rejection; a comment is required
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	h.decide(c, service.DecisionReject)
}

func (h *ApprovalHandler) decide(c *gin.Context, decision service.Decision) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		// An absent body is fine for approvals; the service enforces the
		// reject comment requirement. Malformed JSON is still an error so a
		// garbled comment is not silently dropped.
		if !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid request body"))
			return
		}
	}

	result, err := h.approvalService.RecordApprovalAction(c.Request.Context(), c.Param("id"), userID, decision, body.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
