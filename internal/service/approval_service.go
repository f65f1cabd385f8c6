package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"backend/internal/docproc"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Decision is an approver's verdict on a request at their level.
type Decision string

const (
	DecisionApprove Decision = model.StatusApproved
	DecisionReject  Decision = model.StatusRejected
)

// EventBroadcaster pushes workflow events to connected clients. Optional;
// a nil broadcaster disables notifications.
type EventBroadcaster interface {
	Publish(event string, payload interface{})
}

// ApprovalService owns the request approval lifecycle: per-level
// approve/reject, status derivation and the PO-generation side effect.
type ApprovalService interface {
	RecordApprovalAction(ctx context.Context, requestID, actorID string, decision Decision, comment string) (*RequestResponse, error)
	ListPending(ctx context.Context, page, limit int) ([]RequestResponse, int64, error)
	ListReviewed(ctx context.Context, actorID string, mine bool, page, limit int) ([]RequestResponse, int64, error)
}

type approvalService struct {
	txManager    repository.TransactionManager
	requestRepo  repository.RequestRepository
	approvalRepo repository.ApprovalRepository
	auditRepo    repository.AuditRepository
	userRepo     repository.UserRepository
	generator    *docproc.POGenerator
	poFormat     docproc.POFormat
	hub          EventBroadcaster
	logger       *zap.Logger
}

func NewApprovalService(
	txManager repository.TransactionManager,
	requestRepo repository.RequestRepository,
	approvalRepo repository.ApprovalRepository,
	auditRepo repository.AuditRepository,
	userRepo repository.UserRepository,
	generator *docproc.POGenerator,
	poFormat docproc.POFormat,
	hub EventBroadcaster,
	logger *zap.Logger,
) ApprovalService {
	return &approvalService{
		txManager:    txManager,
		requestRepo:  requestRepo,
		approvalRepo: approvalRepo,
		auditRepo:    auditRepo,
		userRepo:     userRepo,
		generator:    generator,
		poFormat:     poFormat,
		hub:          hub,
		logger:       logger,
	}
}

// RecordApprovalAction applies one approver's decision to a pending request.
// The approval write, status re-derivation and audit entry commit in a
// single transaction; the request row is read FOR UPDATE so concurrent
// decisions on the same request serialize and the derivation always sees
// every committed approval. PO generation runs after commit and is never
// allowed to undo the approval.
func (s *approvalService) RecordApprovalAction(ctx context.Context, requestID, actorID string, decision Decision, comment string) (*RequestResponse, error) {
	reqID, err := uuid.Parse(requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}
	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrValidation)
	}

	actor, err := s.userRepo.GetByID(ctx, actorUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown acting user", ErrForbidden)
	}

	// Level resolution is purely role-driven: any user holding the level's
	// approver role may claim it.
	level, ok := actor.ApprovalLevel()
	if !ok {
		return nil, fmt.Errorf("%w: role %q cannot approve or reject requests", ErrForbidden, actor.Role)
	}

	if decision == DecisionReject && strings.TrimSpace(comment) == "" {
		return nil, fmt.Errorf("%w: rejection comment is required", ErrValidation)
	}

	becameApproved := false

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, findErr := s.requestRepo.FindByIDForUpdate(txCtx, reqID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
			}
			return findErr
		}

		if !req.CanBeActedOn() {
			return fmt.Errorf("%w: request is already %s", ErrConflict, req.Status)
		}

		approval, findErr := s.approvalRepo.FindByRequestAndLevel(txCtx, reqID, level)
		switch {
		case findErr == nil:
			if approval.Decided() {
				return fmt.Errorf("%w: level %d approval already processed", ErrConflict, level)
			}
			approval.Status = string(decision)
			approval.Comment = comment
			approval.ApproverID = actor.ID
			if saveErr := s.approvalRepo.Update(txCtx, approval); saveErr != nil {
				return fmt.Errorf("failed to update approval: %w", saveErr)
			}
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			// Approval rows are created lazily on the first action for the level.
			approval = &model.Approval{
				RequestID:  reqID,
				Level:      level,
				ApproverID: actor.ID,
				Status:     string(decision),
				Comment:    comment,
			}
			if createErr := s.approvalRepo.Create(txCtx, approval); createErr != nil {
				if errors.Is(createErr, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%w: level %d approval already processed", ErrConflict, level)
				}
				return fmt.Errorf("failed to create approval: %w", createErr)
			}
		default:
			return findErr
		}

		approvals, listErr := s.approvalRepo.ListByRequest(txCtx, reqID)
		if listErr != nil {
			return listErr
		}

		newStatus := deriveStatus(approvals)
		if newStatus != req.Status {
			if updateErr := s.requestRepo.UpdateFields(txCtx, req.ID, map[string]interface{}{"status": newStatus}); updateErr != nil {
				return fmt.Errorf("failed to update request status: %w", updateErr)
			}
			becameApproved = newStatus == model.StatusApproved
		}

		action := model.ActionApproveRequest
		if decision == DecisionReject {
			action = model.ActionRejectRequest
		}
		details, _ := json.Marshal(map[string]interface{}{
			"level":      level,
			"decision":   string(decision),
			"comment":    comment,
			"new_status": newStatus,
		})
		audit := model.AuditLog{
			UserID:     &actor.ID,
			Action:     action,
			EntityID:   req.ID.String(),
			EntityName: req.Title,
			Details:    string(details),
		}
		if auditErr := s.auditRepo.Create(txCtx, &audit); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// Best-effort side effect, deliberately outside the transaction: a
	// generation failure must never roll back the committed approval.
	if becameApproved {
		s.generatePurchaseOrder(ctx, reqID)
	}

	full, err := s.requestRepo.FindByIDWithRelations(ctx, reqID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload request: %w", err)
	}

	if s.hub != nil {
		event := "request.approved"
		if full.Status == model.StatusRejected {
			event = "request.rejected"
		}
		if full.Status != model.StatusPending {
			s.hub.Publish(event, map[string]interface{}{
				"request_id": full.ID.String(),
				"title":      full.Title,
				"status":     full.Status,
			})
		}
	}

	resp := toRequestResponse(full)
	return &resp, nil
}

// deriveStatus recomputes the request status from its approval rows. Any
// rejection is terminal regardless of the other level; approval requires
// both levels decided in favor.
func deriveStatus(approvals []model.Approval) string {
	var level1Approved, level2Approved bool
	for _, approval := range approvals {
		if approval.Status == model.StatusRejected {
			return model.StatusRejected
		}
		if approval.Status != model.StatusApproved {
			continue
		}
		switch approval.Level {
		case 1:
			level1Approved = true
		case 2:
			level2Approved = true
		}
	}
	if level1Approved && level2Approved {
		return model.StatusApproved
	}
	return model.StatusPending
}

// generatePurchaseOrder renders and attaches the PO document once the
// request reaches approved. Guarded by the existing reference so the
// workflow triggers it at most once per request; failures are logged and
// swallowed so the reference can be retried by re-invoking later.
func (s *approvalService) generatePurchaseOrder(ctx context.Context, requestID uuid.UUID) {
	req, err := s.requestRepo.FindByIDWithRelations(ctx, requestID)
	if err != nil {
		s.logger.Error("failed to load request for po generation",
			zap.String("request_id", requestID.String()),
			zap.Error(err),
		)
		return
	}
	if req.PurchaseOrderFile != "" {
		return
	}

	path, err := s.generator.Generate(req, s.poFormat)
	if err != nil {
		s.logger.Error("purchase order generation failed, approval stands",
			zap.String("request_id", requestID.String()),
			zap.Error(err),
		)
		return
	}

	if err := s.requestRepo.UpdateFields(ctx, req.ID, map[string]interface{}{"purchase_order_file": path}); err != nil {
		s.logger.Error("failed to attach purchase order reference",
			zap.String("request_id", requestID.String()),
			zap.String("file", path),
			zap.Error(err),
		)
		return
	}

	details, _ := json.Marshal(map[string]interface{}{
		"po_number": docproc.PONumber(req),
		"file":      path,
	})
	audit := model.AuditLog{
		Action:     model.ActionGeneratePO,
		EntityID:   req.ID.String(),
		EntityName: req.Title,
		Details:    string(details),
	}
	if err := s.auditRepo.Create(ctx, &audit); err != nil {
		s.logger.Warn("failed to write po generation audit log", zap.Error(err))
	}
}

func (s *approvalService) ListPending(ctx context.Context, page, limit int) ([]RequestResponse, int64, error) {
	requests, total, err := s.requestRepo.List(ctx, repository.RequestFilter{
		Status: model.StatusPending,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return toRequestResponses(requests), total, nil
}

func (s *approvalService) ListReviewed(ctx context.Context, actorID string, mine bool, page, limit int) ([]RequestResponse, int64, error) {
	var approverID *uuid.UUID
	if mine {
		parsed, err := uuid.Parse(actorID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid user id", ErrValidation)
		}
		approverID = &parsed
	}

	requests, total, err := s.requestRepo.ListReviewed(ctx, approverID, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviewed requests: %w", err)
	}
	return toRequestResponses(requests), total, nil
}
