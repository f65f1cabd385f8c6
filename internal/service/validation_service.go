package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"backend/internal/docproc"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// amountTolerance absorbs rounding noise between the receipt's extracted
// total and the recorded request amount.
var amountTolerance = decimal.RequireFromString("0.01")

// DiscrepancyReport is the structured detail stored with each validation.
type DiscrepancyReport struct {
	AmountMatch  bool     `json:"amount_match"`
	ItemsMatch   bool     `json:"items_match"`
	MissingItems []string `json:"missing_items"`
	ExtraItems   []string `json:"extra_items"`
}

type ValidationResponse struct {
	ID                string            `json:"id"`
	RequestID         string            `json:"request_id"`
	IsValid           bool              `json:"is_valid"`
	DiscrepancyAmount string            `json:"discrepancy_amount"`
	Details           DiscrepancyReport `json:"details"`
	ValidatedBy       string            `json:"validated_by,omitempty"`
	ValidatedAt       string            `json:"validated_at"`
}

// ValidationService reconciles submitted receipts against the purchase
// order data recorded on the request.
type ValidationService interface {
	ValidateReceipt(ctx context.Context, actorID, requestID string) (*ValidationResponse, error)
	GetValidation(ctx context.Context, actorID, requestID string) (*ValidationResponse, error)
}

type validationService struct {
	txManager      repository.TransactionManager
	requestRepo    repository.RequestRepository
	validationRepo repository.ValidationRepository
	userRepo       repository.UserRepository
	auditRepo      repository.AuditRepository
	extractor      docproc.Extractor
	uploadDir      string
	hub            EventBroadcaster
	logger         *zap.Logger
}

func NewValidationService(
	txManager repository.TransactionManager,
	requestRepo repository.RequestRepository,
	validationRepo repository.ValidationRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditRepository,
	extractor docproc.Extractor,
	uploadDir string,
	hub EventBroadcaster,
	logger *zap.Logger,
) ValidationService {
	return &validationService{
		txManager:      txManager,
		requestRepo:    requestRepo,
		validationRepo: validationRepo,
		userRepo:       userRepo,
		auditRepo:      auditRepo,
		extractor:      extractor,
		uploadDir:      uploadDir,
		hub:            hub,
		logger:         logger,
	}
}

// ValidateReceipt extracts the receipt document and compares it against the
// request's recorded amount and items. The result always persists as the
// request's single validation record; re-validation overwrites it.
func (s *validationService) ValidateReceipt(ctx context.Context, actorID, requestID string) (*ValidationResponse, error) {
	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrValidation)
	}
	actor, err := s.userRepo.GetByID(ctx, actorUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown acting user", ErrForbidden)
	}
	if !actor.IsFinance() {
		return nil, fmt.Errorf("%w: only finance can validate receipts", ErrForbidden)
	}

	reqID, err := uuid.Parse(requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}
	request, err := s.requestRepo.FindByIDWithRelations(ctx, reqID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, err
	}

	if request.ReceiptFile == "" {
		return nil, fmt.Errorf("%w: no receipt file submitted for this request", ErrPreconditionFailed)
	}
	if request.PurchaseOrderFile == "" {
		return nil, fmt.Errorf("%w: no purchase order generated for this request", ErrPreconditionFailed)
	}

	extraction := s.extractor.Extract(ctx, filepath.Join(s.uploadDir, filepath.FromSlash(request.ReceiptFile)))
	isValid, discrepancy, report := reconcile(request, extraction)

	detailsJSON, _ := json.Marshal(report)
	validation := model.ReceiptValidation{
		RequestID:          request.ID,
		IsValid:            isValid,
		DiscrepancyDetails: string(detailsJSON),
		ValidatedBy:        &actor.ID,
		ValidatedAt:        time.Now(),
	}
	if !discrepancy.IsZero() || !report.AmountMatch {
		d := discrepancy
		validation.DiscrepancyAmount = &d
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if upsertErr := s.validationRepo.Upsert(txCtx, &validation); upsertErr != nil {
			return fmt.Errorf("failed to store validation result: %w", upsertErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"is_valid":    isValid,
			"discrepancy": discrepancy.StringFixed(2),
		})
		audit := model.AuditLog{
			UserID:     &actor.ID,
			Action:     model.ActionValidateReceipt,
			EntityID:   request.ID.String(),
			EntityName: request.Title,
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

	if s.hub != nil {
		s.hub.Publish("receipt.validated", map[string]interface{}{
			"request_id": request.ID.String(),
			"is_valid":   isValid,
		})
	}

	stored, err := s.validationRepo.FindByRequest(ctx, request.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload validation: %w", err)
	}
	return toValidationResponse(stored), nil
}

func (s *validationService) GetValidation(ctx context.Context, actorID, requestID string) (*ValidationResponse, error) {
	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", ErrValidation)
	}
	actor, err := s.userRepo.GetByID(ctx, actorUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown acting user", ErrForbidden)
	}

	reqID, err := uuid.Parse(requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}
	request, err := s.requestRepo.FindByID(ctx, reqID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		return nil, err
	}
	if request.CreatedBy != actor.ID && !actor.IsFinance() {
		return nil, fmt.Errorf("%w: not allowed to view this validation", ErrForbidden)
	}

	validation, err := s.validationRepo.FindByRequest(ctx, reqID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: receipt not validated yet", ErrNotFound)
		}
		return nil, err
	}
	return toValidationResponse(validation), nil
}

// reconcile applies the discrepancy heuristics. Checks whose inputs are
// absent from the extraction are skipped rather than failed.
func reconcile(request *model.PurchaseRequest, extraction docproc.Extraction) (bool, decimal.Decimal, DiscrepancyReport) {
	isValid := true
	discrepancy := decimal.Zero
	report := DiscrepancyReport{
		AmountMatch:  true,
		ItemsMatch:   true,
		MissingItems: []string{},
		ExtraItems:   []string{},
	}

	if extraction.Total != nil {
		diff := extraction.Total.Sub(request.Amount).Abs()
		if diff.GreaterThan(amountTolerance) {
			isValid = false
			discrepancy = diff
			report.AmountMatch = false
		}
	}

	if len(request.Items) > 0 && len(extraction.Items) > 0 {
		receiptNames := make(map[string]bool, len(extraction.Items))
		for _, item := range extraction.Items {
			if item.Name != "" {
				receiptNames[strings.ToLower(item.Name)] = true
			}
		}
		requestNames := make(map[string]bool, len(request.Items))
		for _, item := range request.Items {
			requestNames[strings.ToLower(item.ItemName)] = true
		}

		seen := map[string]bool{}
		for _, item := range request.Items {
			name := strings.ToLower(item.ItemName)
			if !receiptNames[name] && !seen[name] {
				seen[name] = true
				report.MissingItems = append(report.MissingItems, name)
				report.ItemsMatch = false
				isValid = false
			}
		}
		// Extra items are informational only; they never invalidate.
		seen = map[string]bool{}
		for _, item := range extraction.Items {
			name := strings.ToLower(item.Name)
			if name != "" && !requestNames[name] && !seen[name] {
				seen[name] = true
				report.ExtraItems = append(report.ExtraItems, name)
			}
		}
	}

	return isValid, discrepancy, report
}

func toValidationResponse(v *model.ReceiptValidation) *ValidationResponse {
	resp := &ValidationResponse{
		ID:                v.ID.String(),
		RequestID:         v.RequestID.String(),
		IsValid:           v.IsValid,
		DiscrepancyAmount: "0.00",
		ValidatedAt:       v.ValidatedAt.Format(time.RFC3339),
	}
	if v.DiscrepancyAmount != nil {
		resp.DiscrepancyAmount = v.DiscrepancyAmount.StringFixed(2)
	}
	if v.ValidatedBy != nil {
		resp.ValidatedBy = v.ValidatedBy.String()
	}
	_ = json.Unmarshal([]byte(v.DiscrepancyDetails), &resp.Details)
	return resp
}
