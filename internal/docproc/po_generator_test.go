package docproc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func samplePORequest() *model.PurchaseRequest {
	creator := &model.User{
		ID:       uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"),
		Username: "alice",
		FullName: "Alice Doe",
	}
	return &model.PurchaseRequest{
		ID:          uuid.MustParse("12345678-9abc-4def-8123-456789abcdef"),
		Title:       "Office supplies",
		Description: "Quarterly restock",
		Amount:      decimal.RequireFromString("649.98"),
		Status:      model.StatusApproved,
		CreatedBy:   creator.ID,
		Creator:     creator,
		Items: []model.RequestItem{
			{ItemName: "Paper", Quantity: 10, Price: decimal.RequireFromString("25.00"), Total: decimal.RequireFromString("250.00")},
			{ItemName: "Toner", Quantity: 2, Price: decimal.RequireFromString("199.99"), Total: decimal.RequireFromString("399.98")},
		},
		Approvals: []model.Approval{
			{Level: 1, Status: model.StatusApproved, Approver: &model.User{Username: "bob"}},
			{Level: 2, Status: model.StatusApproved, Approver: &model.User{Username: "carol"}, Comment: "ok"},
		},
	}
}

func TestPONumberIsDeterministic(t *testing.T) {
	req := samplePORequest()
	assert.Equal(t, "PO-12345678", PONumber(req))
	assert.Equal(t, PONumber(req), PONumber(req))
}

func TestGenerateJSONDocument(t *testing.T) {
	dir := t.TempDir()
	generator := NewPOGenerator(dir, zap.NewNop())
	req := samplePORequest()

	relPath, err := generator.Generate(req, POFormatJSON)
	require.NoError(t, err)
	assert.Contains(t, relPath, "purchase_orders/"+req.ID.String())

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(relPath)))
	require.NoError(t, err)

	var doc poDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "PO-12345678", doc.PONumber)
	assert.Equal(t, req.ID.String(), doc.RequestID)
	assert.Equal(t, "649.98", doc.Amount)
	assert.Equal(t, "Alice Doe", doc.RequestedBy.FullName)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "399.98", doc.Items[1].Total)
	require.Len(t, doc.Approvals, 2)
	assert.Equal(t, "carol", doc.Approvals[1].Approver)
	require.NotNil(t, doc.Approvals[1].ApprovedAt)
}

func TestGeneratePDFDocument(t *testing.T) {
	dir := t.TempDir()
	generator := NewPOGenerator(dir, zap.NewNop())

	relPath, err := generator.Generate(samplePORequest(), POFormatPDF)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(relPath)))
	require.NoError(t, err)
	assert.True(t, len(data) > 0)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestGenerateUnknownFormat(t *testing.T) {
	generator := NewPOGenerator(t.TempDir(), zap.NewNop())
	_, err := generator.Generate(samplePORequest(), POFormat("xml"))
	require.Error(t, err)
}
