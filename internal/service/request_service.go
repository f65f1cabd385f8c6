package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type ItemPayload struct {
	ItemName string `json:"item_name" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Price    string `json:"price" binding:"required"`
}

type CreateRequestDTO struct {
	Title       string        `json:"title" binding:"required,max=200"`
	Description string        `json:"description"`
	Amount      string        `json:"amount" binding:"required"`
	Items       []ItemPayload `json:"items"`
}

type UpdateRequestDTO struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Amount      string        `json:"amount"`
	Items       []ItemPayload `json:"items"`
}

type ListRequestsFilter struct {
	Status string
	Search string
	Page   int
	Limit  int
}

type ItemResponse struct {
	ID       string `json:"id"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Total    string `json:"total"`
}

type ApprovalResponse struct {
	ID           string `json:"id"`
	Level        int    `json:"level"`
	ApproverID   string `json:"approver_id"`
	ApproverName string `json:"approver_name,omitempty"`
	Status       string `json:"status"`
	Comment      string `json:"comment"`
	UpdatedAt    string `json:"updated_at"`
}

type RequestResponse struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Amount            string             `json:"amount"`
	Status            string             `json:"status"`
	CreatedBy         string             `json:"created_by"`
	CreatorName       string             `json:"creator_name,omitempty"`
	ProformaFile      string             `json:"proforma_file,omitempty"`
	PurchaseOrderFile string             `json:"purchase_order_file,omitempty"`
	ReceiptFile       string             `json:"receipt_file,omitempty"`
	Items             []ItemResponse     `json:"items"`
	Approvals         []ApprovalResponse `json:"approvals"`
	CreatedAt         string             `json:"created_at"`
	UpdatedAt         string             `json:"updated_at"`
}

// --- Interface ---

// RequestService covers the requester-facing lifecycle: creation, role
// scoped listing, pending-only edits and document submission.
type RequestService interface {
	Create(ctx context.Context, actorID string, req CreateRequestDTO) (*RequestResponse, error)
	List(ctx context.Context, actorID string, filter ListRequestsFilter) ([]RequestResponse, int64, error)
	Get(ctx context.Context, actorID, requestID string) (*RequestResponse, error)
	Update(ctx context.Context, actorID, requestID string, req UpdateRequestDTO) (*RequestResponse, error)
	Delete(ctx context.Context, actorID, requestID string) error
	AttachProforma(ctx context.Context, actorID, requestID, filename string, src io.Reader) (*RequestResponse, error)
	SubmitReceipt(ctx context.Context, actorID, requestID, filename string, src io.Reader) (*RequestResponse, error)
}

type requestService struct {
	txManager   repository.TransactionManager
	requestRepo repository.RequestRepository
	userRepo    repository.UserRepository
	auditRepo   repository.AuditRepository
	uploadDir   string
	hub         EventBroadcaster
	logger      *zap.Logger
}

func NewRequestService(
	txManager repository.TransactionManager,
	requestRepo repository.RequestRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	uploadDir string,
	hub EventBroadcaster,
	logger *zap.Logger,
) RequestService {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		logger.Warn("failed to create upload directory", zap.String("dir", uploadDir), zap.Error(err))
	}
	return &requestService{
		txManager:   txManager,
		requestRepo: requestRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		uploadDir:   uploadDir,
		hub:         hub,
		logger:      logger,
	}
}

// --- Implementation ---

func (s *requestService) Create(ctx context.Context, actorID string, req CreateRequestDTO) (*RequestResponse, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	amount, err := parseMoney(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrValidation, req.Amount)
	}

	items, err := buildItems(req.Items)
	if err != nil {
		return nil, err
	}

	request := model.PurchaseRequest{
		Title:       req.Title,
		Description: req.Description,
		Amount:      amount,
		Status:      model.StatusPending,
		CreatedBy:   actor.ID,
		Items:       items,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.requestRepo.Create(txCtx, &request); createErr != nil {
			return fmt.Errorf("failed to create request: %w", createErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionCreateRequest, &request, map[string]interface{}{
			"amount": amount.StringFixed(2),
			"items":  len(items),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Publish("request.created", map[string]interface{}{
			"request_id": request.ID.String(),
			"title":      request.Title,
			"amount":     amount.StringFixed(2),
		})
	}

	return s.reload(ctx, request.ID)
}

func (s *requestService) List(ctx context.Context, actorID string, filter ListRequestsFilter) ([]RequestResponse, int64, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, 0, err
	}

	repoFilter := repository.RequestFilter{
		Status: filter.Status,
		Search: filter.Search,
		Offset: (filter.Page - 1) * filter.Limit,
		Limit:  filter.Limit,
	}
	// Staff only ever see their own requests; approvers and finance see all.
	if !actor.CanViewAll() {
		repoFilter.CreatedBy = &actor.ID
	}

	requests, total, err := s.requestRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	return toRequestResponses(requests), total, nil
}

func (s *requestService) Get(ctx context.Context, actorID, requestID string) (*RequestResponse, error) {
	actor, request, err := s.loadActorAndRequest(ctx, actorID, requestID)
	if err != nil {
		return nil, err
	}
	if request.CreatedBy != actor.ID && !actor.CanViewAll() {
		return nil, fmt.Errorf("%w: not your request", ErrForbidden)
	}
	resp := toRequestResponse(request)
	return &resp, nil
}

func (s *requestService) Update(ctx context.Context, actorID, requestID string, req UpdateRequestDTO) (*RequestResponse, error) {
	actor, request, err := s.loadActorAndRequest(ctx, actorID, requestID)
	if err != nil {
		return nil, err
	}
	if request.CreatedBy != actor.ID {
		return nil, fmt.Errorf("%w: only the creator can edit a request", ErrForbidden)
	}
	if !request.CanBeEdited() {
		return nil, fmt.Errorf("%w: cannot edit a request that is %s", ErrConflict, request.Status)
	}

	fields := map[string]interface{}{}
	if req.Title != "" {
		fields["title"] = req.Title
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	if req.Amount != "" {
		amount, parseErr := parseMoney(req.Amount)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: invalid amount %q", ErrValidation, req.Amount)
		}
		fields["amount"] = amount
	}

	var items []model.RequestItem
	if req.Items != nil {
		items, err = buildItems(req.Items)
		if err != nil {
			return nil, err
		}
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if len(fields) > 0 {
			if updateErr := s.requestRepo.UpdateFields(txCtx, request.ID, fields); updateErr != nil {
				return fmt.Errorf("failed to update request: %w", updateErr)
			}
		}
		// Items are replaced wholesale, never patched line by line.
		if req.Items != nil {
			if replaceErr := s.requestRepo.ReplaceItems(txCtx, request.ID, items); replaceErr != nil {
				return fmt.Errorf("failed to replace items: %w", replaceErr)
			}
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionUpdateRequest, request, map[string]interface{}{
			"fields": len(fields),
			"items":  len(items),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, request.ID)
}

func (s *requestService) Delete(ctx context.Context, actorID, requestID string) error {
	actor, request, err := s.loadActorAndRequest(ctx, actorID, requestID)
	if err != nil {
		return err
	}
	if request.CreatedBy != actor.ID {
		return fmt.Errorf("%w: only the creator can delete a request", ErrForbidden)
	}
	if !request.CanBeEdited() {
		return fmt.Errorf("%w: cannot delete a request that is %s", ErrConflict, request.Status)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if deleteErr := s.requestRepo.Delete(txCtx, request.ID); deleteErr != nil {
			return fmt.Errorf("failed to delete request: %w", deleteErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionDeleteRequest, request, nil)
	})
}

// AttachProforma stores the vendor quote alongside a still-pending request.
func (s *requestService) AttachProforma(ctx context.Context, actorID, requestID, filename string, src io.Reader) (*RequestResponse, error) {
	actor, request, err := s.loadActorAndRequest(ctx, actorID, requestID)
	if err != nil {
		return nil, err
	}
	if request.CreatedBy != actor.ID {
		return nil, fmt.Errorf("%w: only the creator can attach a proforma", ErrForbidden)
	}
	if !request.CanBeEdited() {
		return nil, fmt.Errorf("%w: cannot attach a proforma to a request that is %s", ErrConflict, request.Status)
	}

	relPath, err := s.saveUpload("proformas", request.ID, filename, src)
	if err != nil {
		return nil, err
	}
	if err := s.requestRepo.UpdateFields(ctx, request.ID, map[string]interface{}{"proforma_file": relPath}); err != nil {
		return nil, fmt.Errorf("failed to attach proforma: %w", err)
	}
	return s.reload(ctx, request.ID)
}

// SubmitReceipt stores the receipt for a fully approved request, readying it
// for finance reconciliation.
func (s *requestService) SubmitReceipt(ctx context.Context, actorID, requestID, filename string, src io.Reader) (*RequestResponse, error) {
	actor, request, err := s.loadActorAndRequest(ctx, actorID, requestID)
	if err != nil {
		return nil, err
	}
	if request.CreatedBy != actor.ID {
		return nil, fmt.Errorf("%w: only the request creator can submit receipts", ErrForbidden)
	}
	if request.Status != model.StatusApproved {
		return nil, fmt.Errorf("%w: receipts can only be submitted for approved requests", ErrConflict)
	}

	relPath, err := s.saveUpload("receipts", request.ID, filename, src)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if updateErr := s.requestRepo.UpdateFields(txCtx, request.ID, map[string]interface{}{"receipt_file": relPath}); updateErr != nil {
			return fmt.Errorf("failed to attach receipt: %w", updateErr)
		}
		return s.writeAudit(txCtx, actor.ID, model.ActionSubmitReceipt, request, map[string]interface{}{"file": relPath})
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, request.ID)
}

// --- Helpers ---

func (s *requestService) loadActor(ctx context.Context, actorID string) (*model.User, error) {
	parsed, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrValidation)
	}
	actor, err := s.userRepo.GetByID(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown acting user", ErrForbidden)
	}
	return actor, nil
}

func (s *requestService) loadActorAndRequest(ctx context.Context, actorID, requestID string) (*model.User, *model.PurchaseRequest, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	reqID, err := uuid.Parse(requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}
	request, err := s.requestRepo.FindByIDWithRelations(ctx, reqID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, nil, err
	}
	return actor, request, nil
}

func (s *requestService) reload(ctx context.Context, id uuid.UUID) (*RequestResponse, error) {
	request, err := s.requestRepo.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload request: %w", err)
	}
	resp := toRequestResponse(request)
	return &resp, nil
}

func (s *requestService) writeAudit(ctx context.Context, userID uuid.UUID, action string, request *model.PurchaseRequest, extra map[string]interface{}) error {
	details, _ := json.Marshal(extra)
	entry := model.AuditLog{
		UserID:     &userID,
		Action:     action,
		EntityID:   request.ID.String(),
		EntityName: request.Title,
		Details:    string(details),
	}
	if err := s.auditRepo.Create(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// saveUpload writes the uploaded file under <uploadDir>/<kind>/<requestID>/
// and returns the path relative to the upload root.
func (s *requestService) saveUpload(kind string, requestID uuid.UUID, filename string, src io.Reader) (string, error) {
	safeName := filepath.Base(filename)
	dir := filepath.Join(s.uploadDir, kind, requestID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	dst, err := os.Create(filepath.Join(dir, safeName))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(kind, requestID.String(), safeName)), nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount")
	}
	return amount.Round(2), nil
}

func buildItems(payloads []ItemPayload) ([]model.RequestItem, error) {
	items := make([]model.RequestItem, 0, len(payloads))
	for _, p := range payloads {
		if p.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", ErrValidation)
		}
		price, err := parseMoney(p.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid item price %q", ErrValidation, p.Price)
		}
		items = append(items, model.RequestItem{
			ItemName: p.ItemName,
			Quantity: p.Quantity,
			Price:    price,
			Total:    price.Mul(decimal.NewFromInt(int64(p.Quantity))),
		})
	}
	return items, nil
}

func toRequestResponse(r *model.PurchaseRequest) RequestResponse {
	resp := RequestResponse{
		ID:                r.ID.String(),
		Title:             r.Title,
		Description:       r.Description,
		Amount:            r.Amount.StringFixed(2),
		Status:            r.Status,
		CreatedBy:         r.CreatedBy.String(),
		ProformaFile:      r.ProformaFile,
		PurchaseOrderFile: r.PurchaseOrderFile,
		ReceiptFile:       r.ReceiptFile,
		Items:             make([]ItemResponse, 0, len(r.Items)),
		Approvals:         make([]ApprovalResponse, 0, len(r.Approvals)),
		CreatedAt:         r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         r.UpdatedAt.Format(time.RFC3339),
	}
	if r.Creator != nil {
		resp.CreatorName = r.Creator.DisplayName()
	}
	for _, item := range r.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:       item.ID.String(),
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
			Total:    item.Total.StringFixed(2),
		})
	}
	for _, approval := range r.Approvals {
		ar := ApprovalResponse{
			ID:         approval.ID.String(),
			Level:      approval.Level,
			ApproverID: approval.ApproverID.String(),
			Status:     approval.Status,
			Comment:    approval.Comment,
			UpdatedAt:  approval.UpdatedAt.Format(time.RFC3339),
		}
		if approval.Approver != nil {
			ar.ApproverName = approval.Approver.DisplayName()
		}
		resp.Approvals = append(resp.Approvals, ar)
	}
	return resp
}

func toRequestResponses(requests []model.PurchaseRequest) []RequestResponse {
	result := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, toRequestResponse(&requests[i]))
	}
	return result
}
