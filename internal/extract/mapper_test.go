package extract

import (
	"testing"

	"github.com/folio-health/folio/internal/capability"
	"github.com/folio-health/folio/internal/taxonomy"
	"github.com/folio-health/folio/internal/types"
)

const testTaxonomy = `fields:
  - field: glucose
    labels: [glucose, GLU]
    normalizer: numeric_unit
    required: true
    units: [mg/dL, mmol/L]
    range: {min: 50, max: 200}
  - field: collection_date
    labels: [collection_date, sample_date]
    normalizer: date
    required: true
    importance: 0.5
  - field: amh
    labels: [AMH]
    normalizer: numeric_unit
    units: [ng/mL]
    range: {min: 0, max: 25}
    importance: 1.5
  - field: clinician
    labels: [clinician]
    normalizer: text
    importance: 0.1
`

func testTax(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Parse([]byte(testTaxonomy))
	if err != nil {
		t.Fatalf("failed to parse test taxonomy: %v", err)
	}
	return tax
}

func regionText(id string, page int, label, text string, detConf, ocrConf float64) RegionText {
	return RegionText{
		Region: types.Region{
			ID:            id,
			PageNo:        page,
			Box:           types.BoundingBox{X1: 10, Y1: 10, X2: 100, Y2: 40},
			DetectorLabel: label,
			DetectorConf:  detConf,
		},
		Recognition: capability.Recognition{Text: text, Confidence: ocrConf},
	}
}

func TestMapFields(t *testing.T) {
	m := NewMapper(testTax(t), nil)

	t.Run("maps known labels", func(t *testing.T) {
		fields, unmapped := m.MapFields([]RegionText{
			regionText("r1", 1, "glucose", "95 mg/dL", 0.9, 0.9),
			regionText("r2", 1, "sample_date", "2025-03-14", 0.8, 0.95),
		})

		if unmapped != 0 {
			t.Errorf("expected 0 unmapped, got %d", unmapped)
		}
		if len(fields) != 2 {
			t.Fatalf("expected 2 fields, got %d", len(fields))
		}

		g := fields["glucose"]
		if g.Normalized == nil || *g.Normalized != "95" {
			t.Errorf("expected normalized 95, got %v", g.Normalized)
		}
		if g.Numeric == nil || *g.Numeric != 95 {
			t.Errorf("expected numeric 95, got %v", g.Numeric)
		}
		if g.Unit != "mg/dL" {
			t.Errorf("expected unit mg/dL, got %q", g.Unit)
		}

		d := fields["collection_date"]
		if d.Normalized == nil || *d.Normalized != "2025-03-14" {
			t.Errorf("expected normalized date, got %v", d.Normalized)
		}
	})

	t.Run("unknown labels counted not errored", func(t *testing.T) {
		fields, unmapped := m.MapFields([]RegionText{
			regionText("r1", 1, "page_header", "ACME LABS", 0.99, 0.99),
			regionText("r2", 1, "logo", "", 0.7, 0),
			regionText("r3", 1, "glucose", "95 mg/dL", 0.9, 0.9),
		})

		if unmapped != 2 {
			t.Errorf("expected 2 unmapped, got %d", unmapped)
		}
		if len(fields) != 1 {
			t.Errorf("expected 1 field, got %d", len(fields))
		}
	})

	t.Run("normalization failure keeps raw text", func(t *testing.T) {
		fields, _ := m.MapFields([]RegionText{
			regionText("r1", 1, "glucose", "pending", 0.9, 0.9),
		})

		g, ok := fields["glucose"]
		if !ok {
			t.Fatal("expected glucose field even when unparseable")
		}
		if g.Normalized != nil {
			t.Errorf("expected nil normalized value, got %v", *g.Normalized)
		}
		if g.RawText != "pending" {
			t.Errorf("expected raw text preserved, got %q", g.RawText)
		}
	})

	t.Run("higher combined confidence wins duplicates", func(t *testing.T) {
		fields, _ := m.MapFields([]RegionText{
			regionText("r1", 1, "glucose", "95 mg/dL", 0.6, 0.6),
			regionText("r2", 2, "GLU", "110 mg/dL", 0.9, 0.9),
		})

		g := fields["glucose"]
		if g.RegionID != "r2" {
			t.Errorf("expected r2 to win, got %s", g.RegionID)
		}
	})

	t.Run("confidence tie breaks to lowest page", func(t *testing.T) {
		fields, _ := m.MapFields([]RegionText{
			regionText("r9", 2, "glucose", "110 mg/dL", 0.8, 0.8),
			regionText("r5", 1, "GLU", "95 mg/dL", 0.8, 0.8),
		})

		g := fields["glucose"]
		if g.PageNo != 1 {
			t.Errorf("expected page 1 to win the tie, got page %d", g.PageNo)
		}
	})

	t.Run("same page tie breaks to lowest region id", func(t *testing.T) {
		fields, _ := m.MapFields([]RegionText{
			regionText("r7", 1, "glucose", "110 mg/dL", 0.8, 0.8),
			regionText("r2", 1, "GLU", "95 mg/dL", 0.8, 0.8),
		})

		g := fields["glucose"]
		if g.RegionID != "r2" {
			t.Errorf("expected r2 to win the tie, got %s", g.RegionID)
		}
	})

	t.Run("order independence for ties", func(t *testing.T) {
		a := regionText("r2", 1, "glucose", "95 mg/dL", 0.8, 0.8)
		b := regionText("r7", 1, "GLU", "110 mg/dL", 0.8, 0.8)

		f1, _ := m.MapFields([]RegionText{a, b})
		f2, _ := m.MapFields([]RegionText{b, a})

		if f1["glucose"].RegionID != f2["glucose"].RegionID {
			t.Errorf("winner depends on input order: %s vs %s",
				f1["glucose"].RegionID, f2["glucose"].RegionID)
		}
	})
}
