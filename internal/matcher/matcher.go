package matcher

import (
	"sort"
	"strings"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/poindex"
	"invoice-reconciliation-service/internal/similarity"
	"invoice-reconciliation-service/pkg/logger"
)

// TieredMatcher matches extracted invoices against a purchase order index
type TieredMatcher struct {
	index  *poindex.Index
	config *MatchingConfig
	logger logger.Logger
}

// NewTieredMatcher creates a matcher over the given index. A nil config
// uses DefaultMatchingConfig.
func NewTieredMatcher(index *poindex.Index, config *MatchingConfig) *TieredMatcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &TieredMatcher{
		index:  index,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// Config returns the active matching configuration
func (m *TieredMatcher) Config() *MatchingConfig {
	return m.config
}

// Match finds the best purchase order for an extracted invoice. It never
// returns an error: absent or unusable invoice fields degrade the result
// to weaker tiers, and exhausting all tiers produces a no-match result
// with zero confidence.
func (m *TieredMatcher) Match(inv *models.ExtractedInvoice) *models.MatchResult {
	if inv == nil {
		return noMatchResult(nil)
	}

	log := m.logger.WithField("invoice_number", inv.InvoiceNumber)

	if result := m.matchExact(inv, log); result != nil {
		return result
	}

	// Fuzzy tiers share their candidate pools with the alternatives list,
	// so search with the lower alternative floor and filter on acceptance.
	var pool []poindex.Candidate

	supplierCands := m.searchSupplierProduct(inv)
	pool = append(pool, supplierCands...)
	if result := m.acceptTier2(inv, supplierCands, log); result != nil {
		result.AlternativeMatches = m.alternatives(pool, result.MatchedPONumber)
		return result
	}

	productCands := m.searchProductOnly(inv)
	pool = mergeCandidates(pool, productCands)
	if result := m.acceptTier3(inv, productCands, log); result != nil {
		result.AlternativeMatches = m.alternatives(pool, result.MatchedPONumber)
		return result
	}

	log.Debug("no purchase order matched in any tier")
	result := noMatchResult(inv)
	result.AlternativeMatches = m.alternatives(pool, "")
	return result
}

// matchExact implements tier 1: direct lookup by the invoice's purchase
// order reference.
func (m *TieredMatcher) matchExact(inv *models.ExtractedInvoice, log logger.Logger) *models.MatchResult {
	ref := strings.TrimSpace(inv.POReference)
	if ref == "" {
		return nil
	}

	po, ok := m.index.LookupByID(ref)
	if !ok {
		log.WithField("po_reference", ref).Debug("purchase order reference not found in index")
		return nil
	}

	refConfidence := inv.ConfidenceFor("po_reference", 1.0)
	confidence := m.config.Tier1BaseConfidence + m.config.Tier1ConfidenceSpan*refConfidence

	supplierMatch := true
	if inv.SupplierName != "" && po.Supplier != "" {
		supplierScore := similarity.Score(inv.SupplierName, po.Supplier)
		if supplierScore < m.config.SupplierMatchThreshold {
			supplierMatch = false
			confidence -= m.config.SupplierMismatchPenalty
			if confidence < m.config.Tier1ConfidenceFloor {
				confidence = m.config.Tier1ConfidenceFloor
			}
			log.WithFields(logger.Fields{
				"po_number":      po.PONumber,
				"supplier_score": supplierScore,
			}).Warn("exact reference match with supplier mismatch")
		}
	}

	matched, total := m.countMatchedItems(inv, po)

	log.WithFields(logger.Fields{
		"po_number":  po.PONumber,
		"confidence": confidence,
	}).Debug("matched by exact purchase order reference")

	return &models.MatchResult{
		MatchedPO:          po,
		MatchedPONumber:    po.PONumber,
		Confidence:         models.ClampConfidence(confidence),
		Method:             models.MatchExactPOReference,
		SupplierMatch:      supplierMatch,
		LineItemsMatched:   matched,
		LineItemsTotal:     total,
		AlternativeMatches: []models.AlternativeMatch{},
	}
}

func (m *TieredMatcher) searchSupplierProduct(inv *models.ExtractedInvoice) []poindex.Candidate {
	if strings.TrimSpace(inv.SupplierName) == "" {
		return nil
	}
	return m.index.Search(inv.SupplierName, inv.ItemDescriptions(), m.config.AlternativeMinScore)
}

func (m *TieredMatcher) searchProductOnly(inv *models.ExtractedInvoice) []poindex.Candidate {
	items := inv.ItemDescriptions()
	if len(items) == 0 {
		return nil
	}
	return m.index.Search("", items, m.config.AlternativeMinScore)
}

// acceptTier2 selects the best supplier+product candidate if it clears
// the tier 2 score threshold.
func (m *TieredMatcher) acceptTier2(inv *models.ExtractedInvoice, cands []poindex.Candidate, log logger.Logger) *models.MatchResult {
	best := bestCandidate(cands)
	if best == nil || best.Score < m.config.Tier2MinScore {
		return nil
	}

	confidence := rescale(best.Score, m.config.Tier2MinScore, 1.0,
		m.config.Tier2ConfidenceMin, m.config.Tier2ConfidenceMax)
	matched, total := m.countMatchedItems(inv, best.PO)

	log.WithFields(logger.Fields{
		"po_number":  best.PO.PONumber,
		"score":      best.Score,
		"confidence": confidence,
	}).Debug("matched by supplier and product similarity")

	return &models.MatchResult{
		MatchedPO:        best.PO,
		MatchedPONumber:  best.PO.PONumber,
		Confidence:       models.ClampConfidence(confidence),
		Method:           models.MatchSupplierProductFuzzy,
		SupplierMatch:    best.SupplierScore >= m.config.SupplierMatchThreshold,
		LineItemsMatched: matched,
		LineItemsTotal:   total,
	}
}

// acceptTier3 selects the best product-only candidate if it clears the
// tier 3 score threshold.
func (m *TieredMatcher) acceptTier3(inv *models.ExtractedInvoice, cands []poindex.Candidate, log logger.Logger) *models.MatchResult {
	best := bestCandidate(cands)
	if best == nil || best.Score < m.config.Tier3MinScore {
		return nil
	}

	confidence := rescale(best.Score, m.config.Tier3MinScore, 1.0,
		m.config.Tier3ConfidenceMin, m.config.Tier3ConfidenceMax)
	matched, total := m.countMatchedItems(inv, best.PO)

	supplierMatch := false
	if inv.SupplierName != "" && best.PO.Supplier != "" {
		supplierMatch = similarity.Score(inv.SupplierName, best.PO.Supplier) >= m.config.SupplierMatchThreshold
	}

	log.WithFields(logger.Fields{
		"po_number":  best.PO.PONumber,
		"score":      best.Score,
		"confidence": confidence,
	}).Debug("matched by product similarity only")

	return &models.MatchResult{
		MatchedPO:        best.PO,
		MatchedPONumber:  best.PO.PONumber,
		Confidence:       models.ClampConfidence(confidence),
		Method:           models.MatchProductOnlyFuzzy,
		SupplierMatch:    supplierMatch,
		LineItemsMatched: matched,
		LineItemsTotal:   total,
	}
}

// countMatchedItems counts invoice lines whose description clears the
// line item similarity threshold against some purchase order line.
func (m *TieredMatcher) countMatchedItems(inv *models.ExtractedInvoice, po *models.PurchaseOrder) (matched, total int) {
	total = len(inv.LineItems)
	if po == nil || len(po.LineItems) == 0 {
		return 0, total
	}

	poDescriptions := make([]string, len(po.LineItems))
	for i, item := range po.LineItems {
		poDescriptions[i] = item.Description
	}

	for _, item := range inv.LineItems {
		score, _ := similarity.BestMatch(item.Description, poDescriptions)
		if score >= m.config.LineItemMatchThreshold {
			matched++
		}
	}
	return matched, total
}

// alternatives converts a candidate pool into the operator-facing
// alternative list, excluding the selected purchase order. Candidates are
// already filtered to AlternativeMinScore by the index search.
func (m *TieredMatcher) alternatives(pool []poindex.Candidate, selected string) []models.AlternativeMatch {
	alts := make([]models.AlternativeMatch, 0, m.config.MaxAlternatives)
	for _, cand := range pool {
		if cand.PO.PONumber == selected {
			continue
		}
		alts = append(alts, models.AlternativeMatch{
			PONumber: cand.PO.PONumber,
			Supplier: cand.PO.Supplier,
			Score:    cand.Score,
		})
	}

	sort.SliceStable(alts, func(i, j int) bool {
		if alts[i].Score != alts[j].Score {
			return alts[i].Score > alts[j].Score
		}
		return alts[i].PONumber < alts[j].PONumber
	})

	if len(alts) > m.config.MaxAlternatives {
		alts = alts[:m.config.MaxAlternatives]
	}
	return alts
}

// mergeCandidates combines two candidate slices keeping the highest score
// per purchase order number.
func mergeCandidates(a, b []poindex.Candidate) []poindex.Candidate {
	seen := make(map[string]int, len(a))
	merged := make([]poindex.Candidate, 0, len(a)+len(b))
	for _, cand := range a {
		seen[cand.PO.PONumber] = len(merged)
		merged = append(merged, cand)
	}
	for _, cand := range b {
		if idx, ok := seen[cand.PO.PONumber]; ok {
			if cand.Score > merged[idx].Score {
				merged[idx] = cand
			}
			continue
		}
		seen[cand.PO.PONumber] = len(merged)
		merged = append(merged, cand)
	}
	return merged
}

func bestCandidate(cands []poindex.Candidate) *poindex.Candidate {
	if len(cands) == 0 {
		return nil
	}
	// Search results are sorted by score descending, PO number ascending.
	return &cands[0]
}

// rescale maps v from [inLo, inHi] into [outLo, outHi], clamping at the
// band edges.
func rescale(v, inLo, inHi, outLo, outHi float64) float64 {
	if v <= inLo {
		return outLo
	}
	if v >= inHi {
		return outHi
	}
	return outLo + (v-inLo)/(inHi-inLo)*(outHi-outLo)
}

func noMatchResult(inv *models.ExtractedInvoice) *models.MatchResult {
	total := 0
	if inv != nil {
		total = len(inv.LineItems)
	}
	return &models.MatchResult{
		Confidence:         0.0,
		Method:             models.MatchNone,
		SupplierMatch:      false,
		LineItemsMatched:   0,
		LineItemsTotal:     total,
		AlternativeMatches: []models.AlternativeMatch{},
	}
}
