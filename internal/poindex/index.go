// Package poindex provides the in-memory purchase order index.
//
// The index is built once from a static record set at process start and is
// read-only thereafter, so it can be shared across concurrent
// reconciliation workers without locking. It supports exact lookup by
// purchase order number and a linear-scan fuzzy search over supplier
// names and line item descriptions.
package poindex

import (
	"sort"
	"strings"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/similarity"
)

// Candidate is one purchase order surfaced by a fuzzy search, with the
// combined score that ranked it.
type Candidate struct {
	PO            *models.PurchaseOrder
	Score         float64
	SupplierScore float64
	ItemScore     float64
}

// Index holds the loaded purchase orders with a by-number lookup table.
type Index struct {
	byNumber map[string]*models.PurchaseOrder
	all      []*models.PurchaseOrder
}

// Search weights for combining supplier and item-set similarity. The
// item set carries more weight because supplier names repeat across
// orders while line items discriminate between them.
const (
	supplierWeight = 0.4
	itemSetWeight  = 0.6
)

// NewIndex builds an index from the given purchase orders. Records are
// sorted by purchase order number so scans are deterministic regardless
// of input order.
func NewIndex(orders []*models.PurchaseOrder) *Index {
	sorted := make([]*models.PurchaseOrder, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PONumber < sorted[j].PONumber
	})

	byNumber := make(map[string]*models.PurchaseOrder, len(sorted))
	for _, po := range sorted {
		byNumber[normalizeNumber(po.PONumber)] = po
	}

	return &Index{
		byNumber: byNumber,
		all:      sorted,
	}
}

// LookupByID returns the purchase order with the given number, matching
// case-insensitively and ignoring surrounding whitespace.
func (idx *Index) LookupByID(poNumber string) (*models.PurchaseOrder, bool) {
	po, ok := idx.byNumber[normalizeNumber(poNumber)]
	return po, ok
}

// Search scans all purchase orders and scores each against the supplier
// name (when non-empty) and the query item descriptions. Candidates
// scoring at or above minScore are returned sorted by descending score,
// ties broken by ascending purchase order number.
//
// Absent inputs do not contribute: with no supplier the score is the
// item-set similarity alone, with no items it is the supplier similarity
// alone, and with neither the result is empty.
func (idx *Index) Search(supplier string, items []string, minScore float64) []Candidate {
	hasSupplier := strings.TrimSpace(supplier) != ""
	if !hasSupplier && len(items) == 0 {
		return nil
	}

	var candidates []Candidate
	for _, po := range idx.all {
		var supplierScore, itemScore, combined float64

		if hasSupplier {
			supplierScore = similarity.Score(supplier, po.Supplier)
		}
		if len(items) > 0 {
			itemScore = itemSetSimilarity(items, po.ItemDescriptions())
		}

		switch {
		case hasSupplier && len(items) > 0:
			combined = supplierScore*supplierWeight + itemScore*itemSetWeight
		case hasSupplier:
			combined = supplierScore
		default:
			combined = itemScore
		}

		if combined >= minScore {
			candidates = append(candidates, Candidate{
				PO:            po,
				Score:         combined,
				SupplierScore: supplierScore,
				ItemScore:     itemScore,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].PO.PONumber < candidates[j].PO.PONumber
	})

	return candidates
}

// All returns the indexed purchase orders in number order. Callers must
// not modify the returned slice or the records it points to.
func (idx *Index) All() []*models.PurchaseOrder {
	return idx.all
}

// Size returns the number of indexed purchase orders
func (idx *Index) Size() int {
	return len(idx.all)
}

// itemSetSimilarity averages each query item's best match among the
// purchase order's line item descriptions.
func itemSetSimilarity(items, poItems []string) float64 {
	if len(items) == 0 || len(poItems) == 0 {
		return 0.0
	}

	var sum float64
	for _, item := range items {
		best, _ := similarity.BestMatch(item, poItems)
		sum += best
	}
	return sum / float64(len(items))
}

func normalizeNumber(n string) string {
	return strings.ToUpper(strings.TrimSpace(n))
}
