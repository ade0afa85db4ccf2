package extract

import (
	"sort"

	"github.com/folio-health/folio/internal/taxonomy"
	"github.com/folio-health/folio/internal/types"
)

// Validator applies taxonomy constraints to mapped fields and scores
// the resulting record.
type Validator struct {
	taxonomy      *taxonomy.Taxonomy
	lowConfidence float64
}

// NewValidator creates a validator. Fields whose combined confidence
// falls below lowConfidence are flagged for review.
func NewValidator(tax *taxonomy.Taxonomy, lowConfidence float64) *Validator {
	if lowConfidence <= 0 {
		lowConfidence = 0.5
	}
	return &Validator{
		taxonomy:      tax,
		lowConfidence: lowConfidence,
	}
}

// Validate computes validation flags and the overall confidence for a
// set of mapped fields. Flags never block persistence; a flagged
// record is stored and surfaced for human review.
//
// The overall confidence is the importance-weighted mean of each
// field's combined confidence. Missing required fields contribute a
// zero term at their configured importance, so a record missing a
// required field always scores lower than the same record with it.
func (v *Validator) Validate(fields map[string]types.ExtractedField) ([]types.FlagCode, float64) {
	flagSet := make(map[string]types.FlagCode)

	var weightedSum, weightTotal float64

	for _, name := range sortedFieldNames(fields) {
		f := fields[name]
		entry, ok := v.taxonomy.Field(name)
		if !ok {
			continue
		}

		conf := f.CombinedConf()
		weightedSum += entry.Importance * conf
		weightTotal += entry.Importance

		if f.Normalized == nil {
			flagSet[string(types.FlagUnparseableValue)] = types.FlagUnparseableValue
		} else if f.Numeric != nil && entry.Range != nil && !entry.Range.Contains(*f.Numeric) {
			flagSet[string(types.FlagOutOfRange)] = types.FlagOutOfRange
		}
		if conf < v.lowConfidence {
			flagSet[string(types.FlagLowConfidence)] = types.FlagLowConfidence
		}
	}

	for _, required := range v.taxonomy.RequiredFields() {
		if _, present := fields[required]; present {
			continue
		}
		flagSet[string(types.FlagMissingRequiredField)] = types.FlagMissingRequiredField
		if entry, ok := v.taxonomy.Field(required); ok {
			weightTotal += entry.Importance
		}
	}

	confidence := 0.0
	if weightTotal > 0 {
		confidence = weightedSum / weightTotal
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	flags := make([]types.FlagCode, 0, len(flagSet))
	for _, code := range flagSet {
		flags = append(flags, code)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })

	return flags, confidence
}

func sortedFieldNames(m map[string]types.ExtractedField) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
