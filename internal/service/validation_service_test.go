package service

import (
	"context"
	"testing"

	"backend/internal/docproc"
	"backend/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubExtractor returns a canned extraction regardless of the file.
type stubExtractor struct {
	result docproc.Extraction
}

func (s stubExtractor) Extract(ctx context.Context, path string) docproc.Extraction {
	return s.result
}

func newValidationService(env *testEnv, extraction docproc.Extraction) ValidationService {
	return NewValidationService(env.txManager, env.requestRepo, env.validationRepo, env.userRepo, env.auditRepo,
		stubExtractor{result: extraction}, env.uploadDir, nil, zap.NewNop())
}

func money(t *testing.T, raw string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return &d
}

// seedValidatableRequest creates an approved request carrying receipt and
// purchase order references, ready for reconciliation.
func seedValidatableRequest(t *testing.T, env *testEnv, creatorID string, items []ItemPayload) *RequestResponse {
	t.Helper()
	created, err := env.requests.Create(context.Background(), creatorID, CreateRequestDTO{
		Title:  "Office supplies",
		Amount: "100.00",
		Items:  items,
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&model.PurchaseRequest{}).
		Where("id = ?", created.ID).
		Updates(map[string]interface{}{
			"status":              model.StatusApproved,
			"receipt_file":        "receipts/" + created.ID + "/receipt.pdf",
			"purchase_order_file": "purchase_orders/" + created.ID + "/po.pdf",
		}).Error)
	return created
}

func TestValidateReceiptWithinTolerance(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)
	created := seedValidatableRequest(t, env, staff.ID.String(), nil)

	svc := newValidationService(env, docproc.Extraction{
		Total:   money(t, "100.005"),
		RawText: "TOTAL: 100.005",
	})

	result, err := svc.ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, "0.00", result.DiscrepancyAmount)
	assert.True(t, result.Details.AmountMatch)
}

func TestValidateReceiptAmountMismatch(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)
	created := seedValidatableRequest(t, env, staff.ID.String(), nil)

	svc := newValidationService(env, docproc.Extraction{
		Total:   money(t, "105.00"),
		RawText: "TOTAL: 105.00",
	})

	result, err := svc.ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, "5.00", result.DiscrepancyAmount)
	assert.False(t, result.Details.AmountMatch)
}

func TestValidateReceiptItemMatching(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)
	created := seedValidatableRequest(t, env, staff.ID.String(), []ItemPayload{
		{ItemName: "Pens", Quantity: 5, Price: "2.00"},
		{ItemName: "Paper", Quantity: 2, Price: "45.00"},
	})

	// Matching is case-insensitive; "Pens" is satisfied by "pens".
	svc := newValidationService(env, docproc.Extraction{
		Total:   money(t, "100.00"),
		RawText: "receipt",
		Items: []docproc.LineItem{
			{Name: "pens"},
			{Name: "Stapler"},
		},
	})

	result, err := svc.ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.NoError(t, err)

	// A missing requested item invalidates; extras are informational only.
	assert.False(t, result.IsValid)
	assert.False(t, result.Details.ItemsMatch)
	assert.Equal(t, []string{"paper"}, result.Details.MissingItems)
	assert.Equal(t, []string{"stapler"}, result.Details.ExtraItems)
	assert.True(t, result.Details.AmountMatch)
}

func TestValidateReceiptExtraItemsStayValid(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)
	created := seedValidatableRequest(t, env, staff.ID.String(), []ItemPayload{
		{ItemName: "Pens", Quantity: 5, Price: "2.00"},
	})

	svc := newValidationService(env, docproc.Extraction{
		Total:   money(t, "100.00"),
		RawText: "receipt",
		Items: []docproc.LineItem{
			{Name: "Pens"},
			{Name: "Stapler"},
		},
	})

	result, err := svc.ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.Details.ItemsMatch)
	assert.Equal(t, []string{"stapler"}, result.Details.ExtraItems)
}

func TestValidateReceiptSkipsAbsentChecks(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)
	created := seedValidatableRequest(t, env, staff.ID.String(), []ItemPayload{
		{ItemName: "Pens", Quantity: 5, Price: "2.00"},
	})

	// Unreadable documents degrade to an empty extraction; nothing to
	// compare means nothing to flag.
	svc := newValidationService(env, docproc.Extraction{})

	result, err := svc.ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.Details.AmountMatch)
	assert.True(t, result.Details.ItemsMatch)
	assert.Empty(t, result.Details.MissingItems)
}

func TestValidateReceiptPreconditions(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)

	created, err := env.requests.Create(context.Background(), staff.ID.String(), CreateRequestDTO{
		Title:  "Office supplies",
		Amount: "100.00",
	})
	require.NoError(t, err)

	svc := newValidationService(env, docproc.Extraction{})

	// No receipt submitted yet.
	_, err = svc.ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	// Receipt present but no purchase order generated.
	require.NoError(t, env.db.Model(&model.PurchaseRequest{}).
		Where("id = ?", created.ID).
		Update("receipt_file", "receipts/x/receipt.pdf").Error)
	_, err = svc.ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestValidateReceiptFinanceOnly(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	approver := seedUser(t, env.db, "bob", model.RoleApproverLevel1)
	created := seedValidatableRequest(t, env, staff.ID.String(), nil)

	svc := newValidationService(env, docproc.Extraction{})

	_, err := svc.ValidateReceipt(context.Background(), staff.ID.String(), created.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.ValidateReceipt(context.Background(), approver.ID.String(), created.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRevalidationOverwrites(t *testing.T) {
	env := newTestEnv(t)
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)
	created := seedValidatableRequest(t, env, staff.ID.String(), nil)

	first, err := newValidationService(env, docproc.Extraction{
		Total:   money(t, "105.00"),
		RawText: "TOTAL: 105.00",
	}).ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.NoError(t, err)
	assert.False(t, first.IsValid)

	second, err := newValidationService(env, docproc.Extraction{
		Total:   money(t, "100.00"),
		RawText: "TOTAL: 100.00",
	}).ValidateReceipt(context.Background(), finance.ID.String(), created.ID)
	require.NoError(t, err)
	assert.True(t, second.IsValid)
	assert.Equal(t, "0.00", second.DiscrepancyAmount)

	var count int64
	require.NoError(t, env.db.Model(&model.ReceiptValidation{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetValidationVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	outsider := seedUser(t, env.db, "mallory", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)
	created := seedValidatableRequest(t, env, staff.ID.String(), nil)

	svc := newValidationService(env, docproc.Extraction{Total: money(t, "100.00"), RawText: "TOTAL: 100.00"})

	_, err := svc.GetValidation(ctx, finance.ID.String(), created.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ValidateReceipt(ctx, finance.ID.String(), created.ID)
	require.NoError(t, err)

	owner, err := svc.GetValidation(ctx, staff.ID.String(), created.ID)
	require.NoError(t, err)
	assert.True(t, owner.IsValid)

	_, err = svc.GetValidation(ctx, outsider.ID.String(), created.ID)
	require.ErrorIs(t, err, ErrForbidden)
}
