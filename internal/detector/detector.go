// Package detector compares an extracted invoice against its matched
// purchase order line by line and reports every variance as structured
// discrepancy data.
//
// Messy inputs are findings, not failures: a missing order, an
// unrecognized line or a zero expected price all come back as
// discrepancies with an appropriate severity. Detect returns an error
// only for caller contract violations such as a nil invoice.
package detector

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/similarity"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// DetectionConfig holds the tolerance bands used to grade variances.
// Percentage thresholds are expressed as percent values, not fractions.
type DetectionConfig struct {
	// Price variance bands, upper bound inclusive: a variance at exactly
	// the minor threshold is still tolerated, one at exactly the major
	// threshold is still minor, and so on.
	PriceMinorPct    float64 `json:"price_minor_pct"`
	PriceMajorPct    float64 `json:"price_major_pct"`
	PriceCriticalPct float64 `json:"price_critical_pct"`

	// QuantityMajorPct splits quantity mismatches into minor and major
	QuantityMajorPct float64 `json:"quantity_major_pct"`

	// TotalTolerancePct bounds the aggregate invoice total variance that
	// still counts as within tolerance
	TotalTolerancePct float64 `json:"total_tolerance_pct"`

	// ItemAlignmentThreshold is the description similarity above which an
	// invoice line without a matching item code is paired with an order line
	ItemAlignmentThreshold float64 `json:"item_alignment_threshold"`

	// RoundingTolerance absorbs sub-unit noise in quantity comparisons
	RoundingTolerance decimal.Decimal `json:"rounding_tolerance"`
}

// DefaultDetectionConfig returns the standard tolerance policy
func DefaultDetectionConfig() *DetectionConfig {
	return &DetectionConfig{
		PriceMinorPct:          2.0,
		PriceMajorPct:          5.0,
		PriceCriticalPct:       15.0,
		QuantityMajorPct:       10.0,
		TotalTolerancePct:      2.0,
		ItemAlignmentThreshold: 0.80,
		RoundingTolerance:      decimal.RequireFromString("0.001"),
	}
}

// Validate validates the detection configuration
func (c *DetectionConfig) Validate() error {
	if c.PriceMinorPct < 0 || c.PriceMajorPct < 0 || c.PriceCriticalPct < 0 {
		return fmt.Errorf("price variance thresholds cannot be negative")
	}
	if !(c.PriceMinorPct < c.PriceMajorPct && c.PriceMajorPct < c.PriceCriticalPct) {
		return fmt.Errorf("price variance bands must be strictly increasing: %v, %v, %v",
			c.PriceMinorPct, c.PriceMajorPct, c.PriceCriticalPct)
	}
	if c.QuantityMajorPct < 0 {
		return fmt.Errorf("quantity_major_pct cannot be negative, got %v", c.QuantityMajorPct)
	}
	if c.TotalTolerancePct < 0 {
		return fmt.Errorf("total_tolerance_pct cannot be negative, got %v", c.TotalTolerancePct)
	}
	if c.ItemAlignmentThreshold < 0 || c.ItemAlignmentThreshold > 1 {
		return fmt.Errorf("item_alignment_threshold must be in [0, 1], got %v", c.ItemAlignmentThreshold)
	}
	if c.RoundingTolerance.IsNegative() {
		return fmt.Errorf("rounding_tolerance cannot be negative, got %s", c.RoundingTolerance.String())
	}
	return nil
}

// Clone returns a copy of the configuration
func (c *DetectionConfig) Clone() *DetectionConfig {
	clone := *c
	return &clone
}

// Detector detects discrepancies between invoices and purchase orders
type Detector struct {
	config *DetectionConfig
	logger logger.Logger
}

// NewDetector creates a detector. A nil config uses DefaultDetectionConfig.
func NewDetector(config *DetectionConfig) *Detector {
	if config == nil {
		config = DefaultDetectionConfig()
	}
	return &Detector{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("detector"),
	}
}

// Config returns the active detection configuration
func (d *Detector) Config() *DetectionConfig {
	return d.config
}

// Detect compares the invoice against the matched purchase order and
// returns every detected discrepancy plus the aggregate total variance.
// A nil purchase order means no order was matched; that is reported as a
// single critical discrepancy covering the whole invoice rather than an
// error. The returned error signals a caller contract violation only.
func (d *Detector) Detect(inv *models.ExtractedInvoice, po *models.PurchaseOrder) ([]models.Discrepancy, *models.TotalVariance, error) {
	if inv == nil {
		return nil, nil, errors.ContractError(errors.CodeNilArgument, "invoice cannot be nil")
	}
	for i := range inv.LineItems {
		if inv.LineItems[i].Quantity.IsNegative() {
			return nil, nil, errors.ContractError(errors.CodeNegativeQuantity,
				fmt.Sprintf("line item %d has negative quantity %s", i, inv.LineItems[i].Quantity.String()))
		}
	}

	log := d.logger.WithField("invoice_number", inv.InvoiceNumber)

	if po == nil {
		log.Debug("no matched purchase order, reporting unmatched invoice")
		return []models.Discrepancy{{
			Kind:      models.DiscrepancyMissingItem,
			Severity:  models.SeverityCritical,
			LineIndex: -1,
			Details:   "no purchase order matched this invoice, every billed item is unverified",
		}}, nil, nil
	}

	discrepancies := make([]models.Discrepancy, 0)

	pairs, extraInvoice, missingPO := d.alignLineItems(inv.LineItems, po.LineItems)

	for _, pair := range pairs {
		discrepancies = append(discrepancies, d.compareLine(pair)...)
	}

	for _, idx := range extraInvoice {
		item := inv.LineItems[idx]
		discrepancies = append(discrepancies, models.Discrepancy{
			Kind:        models.DiscrepancyExtraItem,
			Severity:    models.SeverityMajor,
			LineIndex:   idx,
			Description: item.Description,
			Actual:      decimalPtr(item.LineTotal),
			Details:     fmt.Sprintf("invoice bills '%s' which does not appear on the purchase order", item.Description),
		})
	}

	for _, idx := range missingPO {
		item := po.LineItems[idx]
		discrepancies = append(discrepancies, models.Discrepancy{
			Kind:        models.DiscrepancyMissingItem,
			Severity:    models.SeverityMajor,
			LineIndex:   -1,
			Description: item.Description,
			Expected:    decimalPtr(item.LineTotal),
			Details:     fmt.Sprintf("purchase order line '%s' is not billed on the invoice", item.Description),
		})
	}

	totalVariance := d.compareTotals(inv, po)
	if !totalVariance.WithinTolerance {
		severity := models.SeverityCritical
		details := fmt.Sprintf("invoice total %s billed against an order total of zero",
			inv.Total.StringFixed(2))
		if totalVariance.Percentage != nil {
			severity = d.severityForPct(totalVariance.Percentage.Abs())
			details = fmt.Sprintf("invoice total %s deviates from order total %s by %s (%s%%)",
				inv.Total.StringFixed(2), po.Total.StringFixed(2),
				totalVariance.Amount.StringFixed(2), totalVariance.Percentage.StringFixed(2))
		}
		discrepancies = append(discrepancies, models.Discrepancy{
			Kind:        models.DiscrepancyTotalVariance,
			Severity:    severity,
			LineIndex:   -1,
			Expected:    decimalPtr(po.Total),
			Actual:      decimalPtr(inv.Total),
			Variance:    decimalPtr(totalVariance.Amount),
			VariancePct: totalVariance.Percentage,
			Details:     details,
		})
	}

	log.WithFields(logger.Fields{
		"discrepancies":    len(discrepancies),
		"highest_severity": models.HighestSeverity(discrepancies).String(),
	}).Debug("discrepancy detection complete")

	return discrepancies, totalVariance, nil
}

// linePair is an invoice line aligned with its purchase order counterpart
type linePair struct {
	invoiceIndex int
	invoice      models.LineItem
	order        models.LineItem
}

// alignLineItems pairs invoice lines with order lines. Lines with equal
// item codes pair first, then lines whose descriptions are equal after
// normalization; the rest pair greedily by best description similarity
// above the alignment threshold. Leftovers on either side are returned
// as unaligned indexes.
func (d *Detector) alignLineItems(invItems, poItems []models.LineItem) (pairs []linePair, extraInvoice, missingPO []int) {
	usedPO := make([]bool, len(poItems))

	var unpairedInvoice []int
	for i, item := range invItems {
		paired := false
		if code := normalizeCode(item.ItemCode); code != "" {
			for j, poItem := range poItems {
				if !usedPO[j] && normalizeCode(poItem.ItemCode) == code {
					pairs = append(pairs, linePair{invoiceIndex: i, invoice: item, order: poItem})
					usedPO[j] = true
					paired = true
					break
				}
			}
		}
		if !paired {
			unpairedInvoice = append(unpairedInvoice, i)
		}
	}

	var fuzzyInvoice []int
	for _, i := range unpairedInvoice {
		item := invItems[i]
		norm := similarity.Normalize(item.Description)
		paired := false
		for j, poItem := range poItems {
			if !usedPO[j] && similarity.Normalize(poItem.Description) == norm {
				pairs = append(pairs, linePair{invoiceIndex: i, invoice: item, order: poItem})
				usedPO[j] = true
				paired = true
				break
			}
		}
		if !paired {
			fuzzyInvoice = append(fuzzyInvoice, i)
		}
	}

	for _, i := range fuzzyInvoice {
		item := invItems[i]
		bestScore := 0.0
		bestJ := -1
		for j, poItem := range poItems {
			if usedPO[j] {
				continue
			}
			score := similarity.Score(item.Description, poItem.Description)
			if score > bestScore {
				bestScore = score
				bestJ = j
			}
		}
		if bestJ >= 0 && bestScore >= d.config.ItemAlignmentThreshold {
			pairs = append(pairs, linePair{invoiceIndex: i, invoice: item, order: poItems[bestJ]})
			usedPO[bestJ] = true
		} else {
			extraInvoice = append(extraInvoice, i)
		}
	}

	for j, used := range usedPO {
		if !used {
			missingPO = append(missingPO, j)
		}
	}
	return pairs, extraInvoice, missingPO
}

// compareLine grades the price and quantity variances of one aligned pair
func (d *Detector) compareLine(pair linePair) []models.Discrepancy {
	var found []models.Discrepancy

	expected := pair.order.UnitPrice
	actual := pair.invoice.UnitPrice
	if expected.IsZero() {
		if !actual.IsZero() {
			// Percentage undefined against a zero baseline
			found = append(found, models.Discrepancy{
				Kind:        models.DiscrepancyPriceVariance,
				Severity:    models.SeverityCritical,
				LineIndex:   pair.invoiceIndex,
				Description: pair.invoice.Description,
				Expected:    decimalPtr(expected),
				Actual:      decimalPtr(actual),
				Variance:    decimalPtr(actual.Sub(expected)),
				Details: fmt.Sprintf("'%s' billed at %s against an expected price of zero",
					pair.invoice.Description, actual.StringFixed(2)),
			})
		}
	} else if !actual.Equal(expected) {
		variance := actual.Sub(expected)
		pct := variance.Div(expected).Mul(decimal.NewFromInt(100))
		severity := d.severityForPct(pct.Abs())
		if severity > models.SeverityNone {
			found = append(found, models.Discrepancy{
				Kind:        models.DiscrepancyPriceVariance,
				Severity:    severity,
				LineIndex:   pair.invoiceIndex,
				Description: pair.invoice.Description,
				Expected:    decimalPtr(expected),
				Actual:      decimalPtr(actual),
				Variance:    decimalPtr(variance),
				VariancePct: decimalPtr(pct),
				Details: fmt.Sprintf("'%s' billed at %s against an ordered price of %s (%s%%)",
					pair.invoice.Description, actual.StringFixed(2), expected.StringFixed(2), pct.StringFixed(2)),
			})
		}
	}

	qtyDiff := pair.invoice.Quantity.Sub(pair.order.Quantity)
	if qtyDiff.Abs().GreaterThan(d.config.RoundingTolerance) {
		severity := models.SeverityMajor
		var pctPtr *decimal.Decimal
		if !pair.order.Quantity.IsZero() {
			pct := qtyDiff.Div(pair.order.Quantity).Mul(decimal.NewFromInt(100))
			pctPtr = decimalPtr(pct)
			if pct.Abs().LessThanOrEqual(decimal.NewFromFloat(d.config.QuantityMajorPct)) {
				severity = models.SeverityMinor
			}
		}
		found = append(found, models.Discrepancy{
			Kind:        models.DiscrepancyQuantityMismatch,
			Severity:    severity,
			LineIndex:   pair.invoiceIndex,
			Description: pair.invoice.Description,
			Expected:    decimalPtr(pair.order.Quantity),
			Actual:      decimalPtr(pair.invoice.Quantity),
			Variance:    decimalPtr(qtyDiff),
			VariancePct: pctPtr,
			Details: fmt.Sprintf("'%s' billed quantity %s against an ordered quantity of %s",
				pair.invoice.Description, pair.invoice.Quantity.String(), pair.order.Quantity.String()),
		})
	}

	return found
}

// compareTotals computes the aggregate variance between the invoice total
// and the order total. Against a zero order total the percentage is
// undefined, matching the zero-expected-price convention.
func (d *Detector) compareTotals(inv *models.ExtractedInvoice, po *models.PurchaseOrder) *models.TotalVariance {
	amount := inv.Total.Sub(po.Total)

	if po.Total.IsZero() {
		return &models.TotalVariance{
			Amount:          amount,
			WithinTolerance: amount.IsZero(),
		}
	}

	pct := amount.Div(po.Total).Mul(decimal.NewFromInt(100))
	return &models.TotalVariance{
		Amount:          amount,
		Percentage:      decimalPtr(pct),
		WithinTolerance: pct.Abs().LessThanOrEqual(decimal.NewFromFloat(d.config.TotalTolerancePct)),
	}
}

// severityForPct grades an absolute percentage variance against the
// price bands. Band upper bounds are inclusive.
func (d *Detector) severityForPct(absPct decimal.Decimal) models.Severity {
	switch {
	case absPct.LessThanOrEqual(decimal.NewFromFloat(d.config.PriceMinorPct)):
		return models.SeverityNone
	case absPct.LessThanOrEqual(decimal.NewFromFloat(d.config.PriceMajorPct)):
		return models.SeverityMinor
	case absPct.LessThanOrEqual(decimal.NewFromFloat(d.config.PriceCriticalPct)):
		return models.SeverityMajor
	default:
		return models.SeverityCritical
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
