package docproc

import (
	"bytes"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// fitzStrategy reads PDFs with MuPDF, which keeps enough of the page layout
// for the row heuristics to pick up item tables. Tried first.
type fitzStrategy struct{}

func (fitzStrategy) name() string { return "fitz" }

func (fitzStrategy) extract(path string) (Extraction, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return Extraction{}, err
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		if text != "" {
			pages = append(pages, text)
		}
	}

	raw := strings.TrimSpace(strings.Join(pages, "\n"))
	return parseFields(raw), nil
}

// plainPDFStrategy is the fallback for PDFs fitz yields no text for. It
// loses layout, so only vendor and total recognition are realistic here.
type plainPDFStrategy struct{}

func (plainPDFStrategy) name() string { return "plain-pdf" }

func (plainPDFStrategy) extract(path string) (Extraction, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Extraction{}, err
	}
	defer f.Close()

	body, err := reader.GetPlainText()
	if err != nil {
		return Extraction{}, err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return Extraction{}, err
	}

	return parseFields(strings.TrimSpace(buf.String())), nil
}
