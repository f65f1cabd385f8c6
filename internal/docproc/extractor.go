package docproc

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LineItem is one row recognized in an extracted document. Quantity and
// price stay as raw strings — recognition is best-effort and downstream
// comparison only needs the name.
type LineItem struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

// Extraction is the uniform result every strategy produces. A zero
// Extraction means "no data" and is never an error: corrupt or unreadable
// files degrade to it instead of propagating.
type Extraction struct {
	Vendor  string           `json:"vendor,omitempty"`
	Items   []LineItem       `json:"items,omitempty"`
	Total   *decimal.Decimal `json:"total,omitempty"`
	RawText string           `json:"raw_text"`
}

// Empty reports whether the extraction carries no usable data.
func (e Extraction) Empty() bool {
	return e.RawText == "" && e.Vendor == "" && e.Total == nil && len(e.Items) == 0
}

// Extractor produces best-effort structured data from an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, path string) Extraction
}

// strategy is one extraction backend. Returning an error or an empty
// result makes the caller move on to the next strategy in order.
type strategy interface {
	name() string
	extract(path string) (Extraction, error)
}

type fileExtractor struct {
	logger *zap.Logger
}

// NewExtractor builds the default extractor: a table-aware PDF reader with a
// plain-text fallback, and preprocessed OCR for images.
func NewExtractor(logger *zap.Logger) Extractor {
	return &fileExtractor{logger: logger}
}

func (e *fileExtractor) Extract(ctx context.Context, path string) Extraction {
	var chain []strategy

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		chain = []strategy{fitzStrategy{}, plainPDFStrategy{}}
	case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff":
		chain = []strategy{ocrStrategy{}}
	default:
		// Absence of data is itself the signal for unsupported types.
		return Extraction{}
	}

	for _, s := range chain {
		result, err := s.extract(path)
		if err != nil {
			e.logger.Warn("document extraction strategy failed",
				zap.String("strategy", s.name()),
				zap.String("file", path),
				zap.Error(err),
			)
			continue
		}
		if result.RawText == "" {
			continue
		}
		e.logger.Info("document extracted",
			zap.String("strategy", s.name()),
			zap.String("file", path),
			zap.Int("text_length", len(result.RawText)),
			zap.Int("items", len(result.Items)),
		)
		return result
	}

	return Extraction{}
}
