package docproc

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var vendorPattern = regexp.MustCompile(`(?i)(?:vendor|supplier|from|company)[ \t:]+([A-Za-z][A-Za-z &.]*)`)

// Tried in order; the first pattern with a parsable number wins.
var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)grand[ \t]+total[ \t:]+[$€£]?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)total[ \t:]+[$€£]?([\d,]+\.?\d*)`),
	regexp.MustCompile(`(?i)amount[ \t:]+[$€£]?([\d,]+\.?\d*)`),
}

// Item rows as rendered by common invoice layouts:
// "<name>  <qty>  <unit price>  <line total>" or without the trailing total.
var itemRowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^([A-Za-z][\w &.-]*?)\s{2,}(\d+)\s+\$?([\d,]+\.\d{2})\s+\$?[\d,]+\.\d{2}$`),
	regexp.MustCompile(`^([A-Za-z][\w &.-]*?)\s{2,}(\d+)\s+\$?([\d,]+\.\d{2})$`),
}

// parseFields runs the field heuristics over raw extracted text and fills
// vendor, total and items. Malformed numbers count as "not found".
func parseFields(rawText string) Extraction {
	result := Extraction{RawText: rawText}
	if rawText == "" {
		return result
	}

	if m := vendorPattern.FindStringSubmatch(rawText); m != nil {
		result.Vendor = strings.TrimSpace(m[1])
	}

	for _, pattern := range totalPatterns {
		m := pattern.FindStringSubmatch(rawText)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		total, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		result.Total = &total
		break
	}

	result.Items = parseItemRows(rawText)
	return result
}

func parseItemRows(rawText string) []LineItem {
	var items []LineItem
	for _, line := range strings.Split(rawText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, pattern := range itemRowPatterns {
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			items = append(items, LineItem{
				Name:     strings.TrimSpace(m[1]),
				Quantity: m[2],
				Price:    strings.ReplaceAll(m[3], ",", ""),
			})
			break
		}
	}
	return items
}
