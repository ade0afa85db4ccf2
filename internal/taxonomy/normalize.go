package taxonomy

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Normalized is the result of applying a field's normalizer to raw text.
type Normalized struct {
	Value   string   // canonical string form
	Numeric *float64 // set for numeric values
	Unit    string   // canonical unit, when present
}

// dateLayouts are tried in order. Ambiguous all-numeric forms are read
// as month-first, matching the upstream lab report formats.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02.01.2006",
}

// numericRe matches a leading signed decimal followed by an optional
// unit token, e.g. "2.34 ng/mL", "95mg/dL", "7,1 IU/L", "14".
var numericRe = regexp.MustCompile(`^([<>]?\s*[-+]?\d+(?:[.,]\d+)?)\s*([%µa-zA-Z][µa-zA-Z0-9/%.^-]*)?$`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// cleanText trims and collapses whitespace runs to single spaces.
func cleanText(raw string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
}

// Normalize applies the entry's normalizer to raw OCR text. ok=false
// means the text could not be normalized; the raw text is still kept by
// the caller so nothing is lost for human review.
func (e *Entry) Normalize(raw string) (Normalized, bool) {
	text := cleanText(raw)
	if text == "" {
		return Normalized{}, false
	}

	switch e.Normalizer {
	case NormalizerDate:
		return normalizeDate(text)
	case NormalizerNumericUnit:
		return e.normalizeNumericUnit(text)
	case NormalizerEnum:
		return e.normalizeEnum(text)
	case NormalizerText:
		return Normalized{Value: text}, true
	default:
		return Normalized{}, false
	}
}

func normalizeDate(text string) (Normalized, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return Normalized{Value: t.Format("2006-01-02")}, true
		}
	}
	return Normalized{}, false
}

func (e *Entry) normalizeNumericUnit(text string) (Normalized, bool) {
	m := numericRe.FindStringSubmatch(text)
	if m == nil {
		return Normalized{}, false
	}

	numText := strings.ReplaceAll(m[1], ",", ".")
	// Qualifiers like "<0.1" are kept as their bound value.
	numText = strings.TrimSpace(strings.TrimLeft(numText, "<>"))
	v, err := strconv.ParseFloat(numText, 64)
	if err != nil {
		return Normalized{}, false
	}

	unit := m[2]
	if len(e.Units) > 0 {
		canonical, ok := matchToken(unit, e.Units)
		if !ok {
			return Normalized{}, false
		}
		unit = canonical
	}

	return Normalized{
		Value:   strconv.FormatFloat(v, 'f', -1, 64),
		Numeric: &v,
		Unit:    unit,
	}, true
}

func (e *Entry) normalizeEnum(text string) (Normalized, bool) {
	canonical, ok := matchToken(text, e.Values)
	if !ok {
		return Normalized{}, false
	}
	return Normalized{Value: canonical}, true
}

// matchToken case-insensitively matches a token against the allowed
// set, returning the canonical (configured) spelling.
func matchToken(token string, allowed []string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	for _, a := range allowed {
		if strings.ToLower(a) == t {
			return a, true
		}
	}
	return "", false
}
