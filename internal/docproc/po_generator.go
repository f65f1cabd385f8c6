package docproc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"backend/internal/model"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// POFormat selects the purchase order output form.
type POFormat string

const (
	POFormatPDF  POFormat = "pdf"
	POFormatJSON POFormat = "json"
)

// POGenerator renders an approved purchase request into a durable purchase
// order document under the upload root. Generation is best-effort from the
// workflow's point of view: the caller decides whether a failure is fatal.
type POGenerator struct {
	baseDir string
	logger  *zap.Logger
}

func NewPOGenerator(baseDir string, logger *zap.Logger) *POGenerator {
	return &POGenerator{baseDir: baseDir, logger: logger}
}

// PONumber derives the deterministic purchase order number for a request.
func PONumber(req *model.PurchaseRequest) string {
	compact := strings.ReplaceAll(req.ID.String(), "-", "")
	return "PO-" + strings.ToUpper(compact[:8])
}

// Generate writes the PO document and returns its path relative to the
// upload root. Each call produces a new dated file; the workflow guards
// against regenerating when a reference already exists.
func (g *POGenerator) Generate(req *model.PurchaseRequest, format POFormat) (string, error) {
	dir := filepath.Join(g.baseDir, "purchase_orders", req.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create po directory: %w", err)
	}

	filename := fmt.Sprintf("PO_%s_%s.%s", req.ID, time.Now().Format("20060102"), format)

	var err error
	switch format {
	case POFormatPDF:
		err = g.renderPDF(req, filepath.Join(dir, filename))
	case POFormatJSON:
		err = g.renderJSON(req, filepath.Join(dir, filename))
	default:
		err = fmt.Errorf("unsupported po format: %s", format)
	}
	if err != nil {
		return "", err
	}

	relPath := filepath.ToSlash(filepath.Join("purchase_orders", req.ID.String(), filename))
	g.logger.Info("purchase order generated",
		zap.String("request_id", req.ID.String()),
		zap.String("po_number", PONumber(req)),
		zap.String("file", relPath),
	)
	return relPath, nil
}

func (g *POGenerator) renderPDF(req *model.PurchaseRequest, path string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, "PURCHASE ORDER", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	requester := ""
	if req.Creator != nil {
		requester = req.Creator.DisplayName()
	}

	pdf.SetFont("Helvetica", "", 10)
	details := [][2]string{
		{"PO Number:", PONumber(req)},
		{"Date:", time.Now().Format("2006-01-02")},
		{"Request Title:", req.Title},
		{"Requested By:", requester},
	}
	for _, row := range details {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(45, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(100, 8, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	if req.Description != "" {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Description:", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, req.Description, "", "L", false)
		pdf.Ln(4)
	}

	if len(req.Items) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Items:", "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(200, 200, 200)
		pdf.CellFormat(80, 8, "Item", "1", 0, "C", true, 0, "")
		pdf.CellFormat(25, 8, "Quantity", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 8, "Unit Price", "1", 0, "C", true, 0, "")
		pdf.CellFormat(40, 8, "Total", "1", 1, "C", true, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		for _, item := range req.Items {
			pdf.CellFormat(80, 8, item.ItemName, "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 8, "$"+item.Price.StringFixed(2), "1", 0, "R", false, 0, "")
			pdf.CellFormat(40, 8, "$"+item.Total.StringFixed(2), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	grand := decimal.Zero
	for _, item := range req.Items {
		grand = grand.Add(item.Total)
	}
	if grand.IsZero() {
		grand = req.Amount
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(145, 8, "Total Amount:", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "$"+grand.StringFixed(2), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	if len(req.Approvals) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Approvals:", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, approval := range req.Approvals {
			approver := ""
			if approval.Approver != nil {
				approver = approval.Approver.Username
			}
			line := fmt.Sprintf("Level %d - %s by %s", approval.Level, approval.Status, approver)
			if approval.Comment != "" {
				line += " (" + approval.Comment + ")"
			}
			pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		}
	}

	return pdf.OutputFileAndClose(path)
}

type poDocument struct {
	PONumber    string           `json:"po_number"`
	Date        string           `json:"date"`
	RequestID   string           `json:"request_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Amount      string           `json:"amount"`
	RequestedBy poRequester      `json:"requested_by"`
	Items       []poItem         `json:"items"`
	Approvals   []poApprovalLine `json:"approvals"`
}

type poRequester struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type poItem struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Total    string `json:"total"`
}

type poApprovalLine struct {
	Level      int     `json:"level"`
	Approver   string  `json:"approver"`
	Status     string  `json:"status"`
	Comment    string  `json:"comment"`
	ApprovedAt *string `json:"approved_at"`
}

func (g *POGenerator) renderJSON(req *model.PurchaseRequest, path string) error {
	doc := poDocument{
		PONumber:    PONumber(req),
		Date:        time.Now().Format(time.RFC3339),
		RequestID:   req.ID.String(),
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount.StringFixed(2),
		Items:       make([]poItem, 0, len(req.Items)),
		Approvals:   make([]poApprovalLine, 0, len(req.Approvals)),
	}

	if req.Creator != nil {
		doc.RequestedBy = poRequester{
			ID:       req.Creator.ID.String(),
			Username: req.Creator.Username,
			FullName: req.Creator.DisplayName(),
		}
	}

	for _, item := range req.Items {
		doc.Items = append(doc.Items, poItem{
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
			Total:    item.Total.StringFixed(2),
		})
	}

	for _, approval := range req.Approvals {
		line := poApprovalLine{
			Level:   approval.Level,
			Status:  approval.Status,
			Comment: approval.Comment,
		}
		if approval.Approver != nil {
			line.Approver = approval.Approver.Username
		}
		if approval.Status == model.StatusApproved {
			ts := approval.UpdatedAt.Format(time.RFC3339)
			line.ApprovedAt = &ts
		}
		doc.Approvals = append(doc.Approvals, line)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal po document: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
