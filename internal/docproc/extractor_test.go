package docproc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestExtractUnsupportedExtension(t *testing.T) {
	extractor := NewExtractor(zap.NewNop())
	result := extractor.Extract(context.Background(), "document.docx")
	assert.True(t, result.Empty())
}

func TestExtractMissingFileDegrades(t *testing.T) {
	extractor := NewExtractor(zap.NewNop())

	// Every strategy fails on a nonexistent file; the result degrades to
	// empty instead of an error.
	for _, name := range []string{"missing.pdf", "missing.png"} {
		result := extractor.Extract(context.Background(), filepath.Join(t.TempDir(), name))
		assert.True(t, result.Empty(), name)
	}
}
