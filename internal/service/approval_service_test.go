package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"backend/internal/docproc"
	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func createTestRequest(t *testing.T, env *testEnv, creatorID string) *RequestResponse {
	t.Helper()
	resp, err := env.requests.Create(context.Background(), creatorID, CreateRequestDTO{
		Title:       "Office supplies",
		Description: "Quarterly restock",
		Amount:      "1500.00",
		Items: []ItemPayload{
			{ItemName: "Paper", Quantity: 10, Price: "25.00"},
		},
	})
	require.NoError(t, err)
	return resp
}

func TestTwoLevelApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	level1 := seedUser(t, env.db, "bob", model.RoleApproverLevel1)
	level2 := seedUser(t, env.db, "carol", model.RoleApproverLevel2)

	created := createTestRequest(t, env, staff.ID.String())
	require.Equal(t, model.StatusPending, created.Status)
	require.Len(t, created.Items, 1)
	assert.Equal(t, "250.00", created.Items[0].Total)

	// First level alone must not finalize the request.
	afterL1, err := env.approvals.RecordApprovalAction(ctx, created.ID, level1.ID.String(), DecisionApprove, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, afterL1.Status)
	require.Len(t, afterL1.Approvals, 1)
	assert.Equal(t, 1, afterL1.Approvals[0].Level)
	assert.Equal(t, model.StatusApproved, afterL1.Approvals[0].Status)

	afterL2, err := env.approvals.RecordApprovalAction(ctx, created.ID, level2.ID.String(), DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, afterL2.Status)
	require.Len(t, afterL2.Approvals, 2)

	// Approval triggers PO generation and attaches the file reference.
	require.NotEmpty(t, afterL2.PurchaseOrderFile)
	poPath := filepath.Join(env.uploadDir, filepath.FromSlash(afterL2.PurchaseOrderFile))
	data, err := os.ReadFile(poPath)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, created.ID, doc["request_id"])
	assert.Contains(t, doc["po_number"], "PO-")

	var poAudits int64
	require.NoError(t, env.db.Model(&model.AuditLog{}).Where("action = ?", model.ActionGeneratePO).Count(&poAudits).Error)
	assert.EqualValues(t, 1, poAudits)
}

func TestRejectionIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	level1 := seedUser(t, env.db, "bob", model.RoleApproverLevel1)
	level2 := seedUser(t, env.db, "carol", model.RoleApproverLevel2)

	created := createTestRequest(t, env, staff.ID.String())

	// A single rejection finalizes regardless of the other level.
	rejected, err := env.approvals.RecordApprovalAction(ctx, created.ID, level2.ID.String(), DecisionReject, "over budget")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.Empty(t, rejected.PurchaseOrderFile)

	_, err = env.approvals.RecordApprovalAction(ctx, created.ID, level1.ID.String(), DecisionApprove, "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestRejectRequiresComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	level1 := seedUser(t, env.db, "bob", model.RoleApproverLevel1)

	created := createTestRequest(t, env, staff.ID.String())

	_, err := env.approvals.RecordApprovalAction(ctx, created.ID, level1.ID.String(), DecisionReject, "   ")
	require.ErrorIs(t, err, ErrValidation)

	// The failed action must not leave a row behind.
	var count int64
	require.NoError(t, env.db.Model(&model.Approval{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestDuplicateDecisionConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	level1 := seedUser(t, env.db, "bob", model.RoleApproverLevel1)
	other1 := seedUser(t, env.db, "dave", model.RoleApproverLevel1)

	created := createTestRequest(t, env, staff.ID.String())

	_, err := env.approvals.RecordApprovalAction(ctx, created.ID, level1.ID.String(), DecisionApprove, "")
	require.NoError(t, err)

	// The same approver, and any peer at the same level, are both rejected.
	_, err = env.approvals.RecordApprovalAction(ctx, created.ID, level1.ID.String(), DecisionApprove, "")
	require.ErrorIs(t, err, ErrConflict)
	_, err = env.approvals.RecordApprovalAction(ctx, created.ID, other1.ID.String(), DecisionReject, "changed my mind")
	require.ErrorIs(t, err, ErrConflict)
}

func TestNonApproverCannotDecide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	finance := seedUser(t, env.db, "frank", model.RoleFinance)

	created := createTestRequest(t, env, staff.ID.String())

	_, err := env.approvals.RecordApprovalAction(ctx, created.ID, staff.ID.String(), DecisionApprove, "")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = env.approvals.RecordApprovalAction(ctx, created.ID, finance.ID.String(), DecisionApprove, "")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestApprovalOnMissingRequest(t *testing.T) {
	env := newTestEnv(t)
	level1 := seedUser(t, env.db, "bob", model.RoleApproverLevel1)

	_, err := env.approvals.RecordApprovalAction(context.Background(), "4d4f7b52-93a1-4f69-9f2e-000000000000", level1.ID.String(), DecisionApprove, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPOGenerationFailureKeepsApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A regular file where the generator expects a directory makes every
	// generation attempt fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))
	broken := NewApprovalService(env.txManager, env.requestRepo, env.approvalRepo, env.auditRepo, env.userRepo,
		docproc.NewPOGenerator(blocked, zap.NewNop()), docproc.POFormatJSON, nil, zap.NewNop())

	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	level1 := seedUser(t, env.db, "bob", model.RoleApproverLevel1)
	level2 := seedUser(t, env.db, "carol", model.RoleApproverLevel2)

	created := createTestRequest(t, env, staff.ID.String())

	_, err := broken.RecordApprovalAction(ctx, created.ID, level1.ID.String(), DecisionApprove, "")
	require.NoError(t, err)
	final, err := broken.RecordApprovalAction(ctx, created.ID, level2.ID.String(), DecisionApprove, "")
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, final.Status)
	assert.Empty(t, final.PurchaseOrderFile)
}

func TestListPendingAndReviewed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	staff := seedUser(t, env.db, "alice", model.RoleStaff)
	level1 := seedUser(t, env.db, "bob", model.RoleApproverLevel1)
	level2 := seedUser(t, env.db, "carol", model.RoleApproverLevel2)

	first := createTestRequest(t, env, staff.ID.String())
	second, err := env.requests.Create(ctx, staff.ID.String(), CreateRequestDTO{Title: "Chairs", Amount: "300.00"})
	require.NoError(t, err)

	pending, total, err := env.approvals.ListPending(ctx, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, pending, 2)

	_, err = env.approvals.RecordApprovalAction(ctx, first.ID, level1.ID.String(), DecisionApprove, "")
	require.NoError(t, err)
	_, err = env.approvals.RecordApprovalAction(ctx, first.ID, level2.ID.String(), DecisionApprove, "")
	require.NoError(t, err)
	_, err = env.approvals.RecordApprovalAction(ctx, second.ID, level2.ID.String(), DecisionReject, "not needed")
	require.NoError(t, err)

	pending, total, err = env.approvals.ListPending(ctx, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, pending)

	reviewed, total, err := env.approvals.ListReviewed(ctx, level1.ID.String(), false, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, reviewed, 2)

	// mine=true restricts to requests the approver personally decided.
	mine, total, err := env.approvals.ListReviewed(ctx, level1.ID.String(), true, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name      string
		approvals []model.Approval
		want      string
	}{
		{"no approvals", nil, model.StatusPending},
		{"one level approved", []model.Approval{{Level: 1, Status: model.StatusApproved}}, model.StatusPending},
		{"both levels approved", []model.Approval{
			{Level: 1, Status: model.StatusApproved},
			{Level: 2, Status: model.StatusApproved},
		}, model.StatusApproved},
		{"rejection wins", []model.Approval{
			{Level: 1, Status: model.StatusApproved},
			{Level: 2, Status: model.StatusRejected},
		}, model.StatusRejected},
		{"pending row ignored", []model.Approval{
			{Level: 1, Status: model.StatusPending},
			{Level: 2, Status: model.StatusApproved},
		}, model.StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, deriveStatus(tc.approvals))
		})
	}
}
