package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Severity is the ordinal classification of how serious a discrepancy is.
type Severity int

const (
	// SeverityNone marks a variance that falls inside every tolerance.
	SeverityNone Severity = iota
	// SeverityMinor marks a small variance that needs a reviewer's glance.
	SeverityMinor
	// SeverityMajor marks a variance that blocks automatic approval.
	SeverityMajor
	// SeverityCritical marks a variance that demands immediate human attention.
	SeverityCritical
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON implements JSON marshaling for Severity
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements JSON unmarshaling for Severity
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity parses a severity from its string form
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return SeverityNone, nil
	case "minor":
		return SeverityMinor, nil
	case "major":
		return SeverityMajor, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityNone, fmt.Errorf("invalid severity '%s': must be none, minor, major or critical", s)
	}
}

// DiscrepancyKind identifies what kind of variance a discrepancy describes
type DiscrepancyKind string

const (
	DiscrepancyPriceVariance    DiscrepancyKind = "price_variance"
	DiscrepancyQuantityMismatch DiscrepancyKind = "quantity_mismatch"
	DiscrepancyTotalVariance    DiscrepancyKind = "total_variance"
	DiscrepancyMissingItem      DiscrepancyKind = "missing_item"
	DiscrepancyExtraItem        DiscrepancyKind = "extra_item"
)

// IsValid checks if the discrepancy kind is one of the known values
func (k DiscrepancyKind) IsValid() bool {
	switch k {
	case DiscrepancyPriceVariance, DiscrepancyQuantityMismatch,
		DiscrepancyTotalVariance, DiscrepancyMissingItem, DiscrepancyExtraItem:
		return true
	default:
		return false
	}
}

// MatchMethod identifies which matching tier produced a match
type MatchMethod string

const (
	MatchExactPOReference     MatchMethod = "exact_po_reference"
	MatchSupplierProductFuzzy MatchMethod = "supplier_product_fuzzy"
	MatchProductOnlyFuzzy     MatchMethod = "product_only_fuzzy"
	MatchNone                 MatchMethod = "no_match"
)

// IsDefinitive reports whether the method is strong enough to support
// automatic approval when every other criterion is also met.
func (m MatchMethod) IsDefinitive() bool {
	return m == MatchExactPOReference || m == MatchSupplierProductFuzzy
}

// Action is the recommended handling for a reconciled invoice
type Action string

const (
	ActionAutoApprove     Action = "auto_approve"
	ActionFlagForReview   Action = "flag_for_review"
	ActionEscalateToHuman Action = "escalate_to_human"
)

// RiskLevel summarizes how risky approving an invoice would be
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// LineItem represents one billed line on an invoice or purchase order.
// LineTotal is expected to equal Quantity x UnitPrice up to rounding.
type LineItem struct {
	ItemCode    string          `json:"item_code,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Validate performs contract checks on the LineItem. Negative quantities
// and prices are precondition violations rather than data messiness.
func (li *LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("line item description cannot be empty")
	}
	if li.Quantity.IsNegative() {
		return fmt.Errorf("line item quantity cannot be negative: %s", li.Quantity.String())
	}
	if li.UnitPrice.IsNegative() {
		return fmt.Errorf("line item unit price cannot be negative: %s", li.UnitPrice.String())
	}
	return nil
}

// ExtractedInvoice is the structured record produced by the extraction
// collaborator. It is immutable once produced; downstream stages read it
// but never modify it.
type ExtractedInvoice struct {
	InvoiceNumber   string             `json:"invoice_number"`
	InvoiceDate     string             `json:"invoice_date"`
	SupplierName    string             `json:"supplier_name"`
	POReference     string             `json:"po_reference,omitempty"`
	LineItems       []LineItem         `json:"line_items"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	TaxRate         decimal.Decimal    `json:"tax_rate"`
	TaxAmount       decimal.Decimal    `json:"tax_amount"`
	Total           decimal.Decimal    `json:"total"`
	Currency        string             `json:"currency"`
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`
}

// ConfidenceFor returns the extraction confidence recorded for a field,
// or the provided fallback when the field was never scored.
func (inv *ExtractedInvoice) ConfidenceFor(field string, fallback float64) float64 {
	if inv.FieldConfidence == nil {
		return fallback
	}
	if c, ok := inv.FieldConfidence[field]; ok {
		return c
	}
	return fallback
}

// ItemDescriptions returns the descriptions of all line items in order
func (inv *ExtractedInvoice) ItemDescriptions() []string {
	descriptions := make([]string, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		descriptions = append(descriptions, item.Description)
	}
	return descriptions
}

// Validate performs contract checks on the invoice record. Low-confidence
// or missing business data is not an error here; only structural
// violations fail.
func (inv *ExtractedInvoice) Validate() error {
	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		return fmt.Errorf("invoice number cannot be empty")
	}
	for i := range inv.LineItems {
		if err := inv.LineItems[i].Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i, err)
		}
	}
	return nil
}

// String returns a string representation of the ExtractedInvoice
func (inv *ExtractedInvoice) String() string {
	return fmt.Sprintf("Invoice{Number: %s, Supplier: %s, Items: %d, Total: %s %s}",
		inv.InvoiceNumber, inv.SupplierName, len(inv.LineItems), inv.Total.String(), inv.Currency)
}

// PurchaseOrder is a purchase order record loaded into the index at
// process start. Read-only for the lifetime of the run.
type PurchaseOrder struct {
	PONumber  string          `json:"po_number"`
	Supplier  string          `json:"supplier"`
	Date      string          `json:"date"`
	LineItems []LineItem      `json:"line_items"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}

// Validate performs basic validation on the PurchaseOrder
func (po *PurchaseOrder) Validate() error {
	if strings.TrimSpace(po.PONumber) == "" {
		return fmt.Errorf("purchase order number cannot be empty")
	}
	if strings.TrimSpace(po.Supplier) == "" {
		return fmt.Errorf("purchase order supplier cannot be empty")
	}
	for i := range po.LineItems {
		if err := po.LineItems[i].Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i, err)
		}
	}
	return nil
}

// ItemDescriptions returns the descriptions of all line items in order
func (po *PurchaseOrder) ItemDescriptions() []string {
	descriptions := make([]string, 0, len(po.LineItems))
	for _, item := range po.LineItems {
		descriptions = append(descriptions, item.Description)
	}
	return descriptions
}

// String returns a string representation of the PurchaseOrder
func (po *PurchaseOrder) String() string {
	return fmt.Sprintf("PurchaseOrder{Number: %s, Supplier: %s, Items: %d, Total: %s}",
		po.PONumber, po.Supplier, len(po.LineItems), po.Total.String())
}

// AlternativeMatch is a non-selected purchase order surfaced alongside the
// chosen match for operator review.
type AlternativeMatch struct {
	PONumber string  `json:"po_number"`
	Supplier string  `json:"supplier"`
	Score    float64 `json:"score"`
}

// MatchResult is the outcome of running an invoice through the tiered
// matcher. MatchedPO is nil when no tier succeeded.
type MatchResult struct {
	MatchedPO          *PurchaseOrder     `json:"-"`
	MatchedPONumber    string             `json:"matched_po,omitempty"`
	Confidence         float64            `json:"confidence"`
	Method             MatchMethod        `json:"match_method"`
	SupplierMatch      bool               `json:"supplier_match"`
	LineItemsMatched   int                `json:"line_items_matched"`
	LineItemsTotal     int                `json:"line_items_total"`
	AlternativeMatches []AlternativeMatch `json:"alternative_matches,omitempty"`
}

// Matched reports whether any tier produced a purchase order
func (mr *MatchResult) Matched() bool {
	return mr.MatchedPO != nil
}

// Discrepancy is one detected variance between an invoice and its
// matched purchase order.
type Discrepancy struct {
	Kind        DiscrepancyKind  `json:"kind"`
	Severity    Severity         `json:"severity"`
	LineIndex   int              `json:"line_index"`
	Description string           `json:"description,omitempty"`
	Expected    *decimal.Decimal `json:"expected,omitempty"`
	Actual      *decimal.Decimal `json:"actual,omitempty"`
	Variance    *decimal.Decimal `json:"variance,omitempty"`
	// VariancePct is nil when the percentage is undefined, e.g. a zero
	// expected price.
	VariancePct *decimal.Decimal `json:"variance_pct,omitempty"`
	Details     string           `json:"details"`
}

// TotalVariance is the aggregate variance between the invoice total and
// the matched purchase order total. Percentage is nil when it is
// undefined, i.e. the order total is zero.
type TotalVariance struct {
	Amount          decimal.Decimal  `json:"amount"`
	Percentage      *decimal.Decimal `json:"percentage,omitempty"`
	WithinTolerance bool             `json:"within_tolerance"`
}

// HighestSeverity returns the highest severity present among the given
// discrepancies, SeverityNone when the list is empty.
func HighestSeverity(discrepancies []Discrepancy) Severity {
	highest := SeverityNone
	for _, d := range discrepancies {
		if d.Severity > highest {
			highest = d.Severity
		}
	}
	return highest
}

// Decision is the final recommendation for one reconciled invoice.
// Criteria lists are a pure function of the inputs; the reasoning text is
// assembled from deterministic templates.
type Decision struct {
	Action            Action    `json:"recommended_action"`
	OverallConfidence float64   `json:"overall_confidence"`
	RiskLevel         RiskLevel `json:"risk_level"`
	CriteriaMet       []string  `json:"criteria_met"`
	CriteriaViolated  []string  `json:"criteria_violated"`
	Reasoning         string    `json:"reasoning"`
}

// ParseDecimalFromString parses a decimal value from string, tolerating
// currency symbols and thousand separators.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "£", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ClampConfidence bounds a confidence-like score to [0, 1]
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
