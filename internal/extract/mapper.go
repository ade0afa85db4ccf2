// Package extract turns recognized region text into a validated
// structured record: taxonomy mapping, normalization, duplicate
// resolution, validation flags, and the overall confidence score.
package extract

import (
	"fmt"
	"log/slog"

	"github.com/folio-health/folio/internal/capability"
	"github.com/folio-health/folio/internal/taxonomy"
	"github.com/folio-health/folio/internal/types"
)

// MappingError marks a region that could not be mapped into the
// record. Mapping errors never fail a job; they are logged and the
// region is counted as unmapped.
type MappingError struct {
	RegionID string
	Label    string
	Err      error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping failed (region=%s label=%s): %v", e.RegionID, e.Label, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// RegionText pairs a detected region with its recognized text.
type RegionText struct {
	Region      types.Region
	Recognition capability.Recognition
}

// Mapper resolves detector labels through the taxonomy and selects a
// single value per canonical field.
type Mapper struct {
	taxonomy *taxonomy.Taxonomy
	logger   *slog.Logger
}

// NewMapper creates a field mapper.
func NewMapper(tax *taxonomy.Taxonomy, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		taxonomy: tax,
		logger:   logger.With("component", "mapper"),
	}
}

// MapFields maps recognized regions to canonical fields. Regions whose
// label is not in the taxonomy are counted, not errored. When several
// regions map to the same field, the one with the highest combined
// confidence wins; ties break to the lowest page number, then to the
// lowest region ID so re-runs stay deterministic.
func (m *Mapper) MapFields(regions []RegionText) (map[string]types.ExtractedField, int) {
	fields := make(map[string]types.ExtractedField)
	unmapped := 0

	for _, rt := range regions {
		entry, ok := m.taxonomy.Lookup(rt.Region.DetectorLabel)
		if !ok {
			unmapped++
			m.logger.Debug("unmapped detector label",
				"region_id", rt.Region.ID,
				"label", rt.Region.DetectorLabel)
			continue
		}

		candidate := types.ExtractedField{
			RegionID:      rt.Region.ID,
			Field:         entry.Field,
			PageNo:        rt.Region.PageNo,
			Box:           rt.Region.Box,
			DetectorLabel: rt.Region.DetectorLabel,
			DetectorConf:  rt.Region.DetectorConf,
			RawText:       rt.Recognition.Text,
			OCRConf:       rt.Recognition.Confidence,
		}

		if norm, ok := entry.Normalize(rt.Recognition.Text); ok {
			v := norm.Value
			candidate.Normalized = &v
			candidate.Numeric = norm.Numeric
			candidate.Unit = norm.Unit
		} else {
			m.logger.Warn("value normalization failed",
				"region_id", rt.Region.ID,
				"field", entry.Field,
				"raw_text", rt.Recognition.Text)
		}

		existing, dup := fields[entry.Field]
		if !dup || betterCandidate(&candidate, &existing) {
			fields[entry.Field] = candidate
		}
	}

	return fields, unmapped
}

// betterCandidate reports whether a should replace b for the same
// canonical field.
func betterCandidate(a, b *types.ExtractedField) bool {
	ca, cb := a.CombinedConf(), b.CombinedConf()
	if ca != cb {
		return ca > cb
	}
	if a.PageNo != b.PageNo {
		return a.PageNo < b.PageNo
	}
	return a.RegionID < b.RegionID
}
