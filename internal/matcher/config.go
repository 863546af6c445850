// Package matcher implements the tiered purchase order matching engine.
//
// An extracted invoice is matched against the purchase order index by
// trying progressively weaker strategies, first success wins:
//
//  1. Exact purchase order reference lookup
//  2. Fuzzy supplier name + product description search
//  3. Product-description-only search
//
// Each tier maps its evidence into a disjoint confidence band so the
// confidence value alone tells an operator how the match was made.
// Matching never fails on empty or malformed input: absent fields simply
// do not contribute, and exhausting all tiers yields a no-match result
// rather than an error.
package matcher

import (
	"fmt"
)

// MatchingConfig holds thresholds and confidence bands for the tiered
// matcher. The defaults implement the standard reconciliation policy;
// Validate rejects configurations whose bands overlap or invert.
type MatchingConfig struct {
	// Tier2MinScore is the minimum combined search score for accepting a
	// supplier+product fuzzy match
	Tier2MinScore float64 `json:"tier2_min_score"`

	// Tier3MinScore is the minimum item-set score for accepting a
	// product-only fuzzy match
	Tier3MinScore float64 `json:"tier3_min_score"`

	// AlternativeMinScore is the floor for surfacing non-selected
	// candidates to operators
	AlternativeMinScore float64 `json:"alternative_min_score"`

	// MaxAlternatives caps the alternative candidate list
	MaxAlternatives int `json:"max_alternatives"`

	// SupplierMatchThreshold is the similarity above which supplier names
	// are considered the same party
	SupplierMatchThreshold float64 `json:"supplier_match_threshold"`

	// LineItemMatchThreshold is the description similarity above which an
	// invoice line is counted as present on the purchase order
	LineItemMatchThreshold float64 `json:"line_item_match_threshold"`

	// Tier1BaseConfidence and Tier1ConfidenceSpan define the exact-match
	// confidence: base + span x extraction confidence of the reference field
	Tier1BaseConfidence float64 `json:"tier1_base_confidence"`
	Tier1ConfidenceSpan float64 `json:"tier1_confidence_span"`

	// SupplierMismatchPenalty is subtracted from Tier 1 confidence when
	// the supplier cross-check fails; Tier1ConfidenceFloor bounds the result
	SupplierMismatchPenalty float64 `json:"supplier_mismatch_penalty"`
	Tier1ConfidenceFloor    float64 `json:"tier1_confidence_floor"`

	// Confidence bands for the fuzzy tiers. Search scores are rescaled
	// linearly from [tier min score, 1.0] into these bands.
	Tier2ConfidenceMin float64 `json:"tier2_confidence_min"`
	Tier2ConfidenceMax float64 `json:"tier2_confidence_max"`
	Tier3ConfidenceMin float64 `json:"tier3_confidence_min"`
	Tier3ConfidenceMax float64 `json:"tier3_confidence_max"`
}

// DefaultMatchingConfig returns the standard matching policy
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Tier2MinScore:           0.70,
		Tier3MinScore:           0.50,
		AlternativeMinScore:     0.30,
		MaxAlternatives:         5,
		SupplierMatchThreshold:  0.85,
		LineItemMatchThreshold:  0.70,
		Tier1BaseConfidence:     0.95,
		Tier1ConfidenceSpan:     0.04,
		SupplierMismatchPenalty: 0.05,
		Tier1ConfidenceFloor:    0.90,
		Tier2ConfidenceMin:      0.70,
		Tier2ConfidenceMax:      0.89,
		Tier3ConfidenceMin:      0.50,
		Tier3ConfidenceMax:      0.69,
	}
}

// StrictMatchingConfig returns a policy with tighter acceptance
// thresholds, useful for high-value suppliers.
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.Tier2MinScore = 0.80
	config.Tier3MinScore = 0.65
	config.SupplierMatchThreshold = 0.90
	config.LineItemMatchThreshold = 0.80
	return config
}

// Validate validates the matching configuration
func (c *MatchingConfig) Validate() error {
	unitChecks := map[string]float64{
		"tier2_min_score":           c.Tier2MinScore,
		"tier3_min_score":           c.Tier3MinScore,
		"alternative_min_score":     c.AlternativeMinScore,
		"supplier_match_threshold":  c.SupplierMatchThreshold,
		"line_item_match_threshold": c.LineItemMatchThreshold,
	}
	for name, v := range unitChecks {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}

	if c.MaxAlternatives < 0 {
		return fmt.Errorf("max_alternatives cannot be negative, got %d", c.MaxAlternatives)
	}

	if c.Tier3MinScore > c.Tier2MinScore {
		return fmt.Errorf("tier3_min_score (%v) cannot exceed tier2_min_score (%v)",
			c.Tier3MinScore, c.Tier2MinScore)
	}

	if c.Tier2ConfidenceMin >= c.Tier2ConfidenceMax {
		return fmt.Errorf("tier 2 confidence band is inverted: [%v, %v]",
			c.Tier2ConfidenceMin, c.Tier2ConfidenceMax)
	}
	if c.Tier3ConfidenceMin >= c.Tier3ConfidenceMax {
		return fmt.Errorf("tier 3 confidence band is inverted: [%v, %v]",
			c.Tier3ConfidenceMin, c.Tier3ConfidenceMax)
	}
	if c.Tier3ConfidenceMax >= c.Tier2ConfidenceMin {
		return fmt.Errorf("tier 3 confidence band [%v, %v] overlaps tier 2 band [%v, %v]",
			c.Tier3ConfidenceMin, c.Tier3ConfidenceMax, c.Tier2ConfidenceMin, c.Tier2ConfidenceMax)
	}

	if c.Tier1BaseConfidence+c.Tier1ConfidenceSpan > 1.0 {
		return fmt.Errorf("tier 1 confidence may exceed 1.0: base %v + span %v",
			c.Tier1BaseConfidence, c.Tier1ConfidenceSpan)
	}

	return nil
}

// Clone returns a copy of the configuration
func (c *MatchingConfig) Clone() *MatchingConfig {
	clone := *c
	return &clone
}
