package handler

import (
	"context"
	"io"
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	requestService service.RequestService
}

// NewRequestHandler sets up the routing dependencies for purchase request endpoints
func NewRequestHandler(requestService service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

func anyRole() gin.HandlerFunc {
	return middleware.RequireRole(
		model.RoleStaff, model.RoleApproverLevel1, model.RoleApproverLevel2, model.RoleFinance,
	)
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/requests")
	{
		requests.POST("", anyRole(), h.CreateRequest)
		requests.GET("", anyRole(), h.ListRequests)
		requests.GET("/:id", anyRole(), h.GetRequest)
		requests.PUT("/:id", anyRole(), h.UpdateRequest)
		requests.DELETE("/:id", anyRole(), h.DeleteRequest)
		requests.POST("/:id/proforma", anyRole(), h.UploadProforma)
		requests.POST("/:id/receipt", anyRole(), h.UploadReceipt)
	}
}

// CreateRequest handles POST /requests
// @Summary      Create purchase request
// @Description  Creates a purchase request with optional line items, owned by the caller
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRequestDTO  true  "Create Request Payload"
// @Success      201      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var req service.CreateRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRequests handles GET /requests with status/search filters and pagination
// @Summary      List purchase requests
// @Description  Staff see their own requests; approvers and finance see all
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by status (pending, approved, rejected)"
// @Param        search  query     string  false  "Match against title or description"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20, max 100)"
// @Success      200     {object}  response.Paged
// @Router       /api/requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	params := pagination.Parse(c)
	filter := service.ListRequestsFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   params.Page,
		Limit:  params.Limit,
	}

	requests, total, err := h.requestService.List(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.List(http.StatusOK, requests, total, params.Page, params.Limit))
}

// GetRequest handles GET /requests/:id
// @Summary      Get purchase request
// @Description  Fetch a single request with items, approvals and validation state
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	result, err := h.requestService.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// UpdateRequest handles PUT /requests/:id; only pending requests can be edited
// @Summary      Update purchase request
// @Description  Updates title, description, amount or items while the request is pending
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                    true  "Request ID"
// @Param        payload  body      service.UpdateRequestDTO  true  "Update Request Payload"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id} [put]
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	var req service.UpdateRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// DeleteRequest handles DELETE /requests/:id for pending requests owned by the caller
// @Summary      Delete purchase request
// @Description  Deletes a pending request together with its items and approvals
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	if err := h.requestService.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Request deleted successfully"))
}

// UploadProforma handles POST /requests/:id/proforma (multipart "file" field)
// @Summary      Attach proforma invoice
// @Description  Stores a proforma document against a pending request
// @Tags         requests
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "Request ID"
// @Param        file  formData  file    true  "Proforma document"
// @Success      200   {object}  response.Response{data=service.RequestResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/requests/{id}/proforma [post]
func (h *RequestHandler) UploadProforma(c *gin.Context) {
	h.upload(c, h.requestService.AttachProforma)
}

// UploadReceipt handles POST /requests/:id/receipt (multipart "file" field)
// @Summary      Submit receipt
// @Description  Stores a receipt document against an approved request
// @Tags         requests
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "Request ID"
// @Param        file  formData  file    true  "Receipt document"
// @Success      200   {object}  response.Response{data=service.RequestResponse}
// @Failure      409   {object}  response.Response
// @Router       /api/requests/{id}/receipt [post]
func (h *RequestHandler) UploadReceipt(c *gin.Context) {
	h.upload(c, h.requestService.SubmitReceipt)
}

func (h *RequestHandler) upload(c *gin.Context, store func(ctx context.Context, actorID, requestID, filename string, src io.Reader) (*service.RequestResponse, error)) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Missing 'file' form field"))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Failed to read uploaded file"))
		return
	}
	defer src.Close()

	result, err := store(c.Request.Context(), userID, c.Param("id"), fileHeader.Filename, src)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
