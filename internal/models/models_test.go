package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSeverityOrdering(t *testing.T) {
	if !(SeverityNone < SeverityMinor && SeverityMinor < SeverityMajor && SeverityMajor < SeverityCritical) {
		t.Error("severities must order none < minor < major < critical")
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityNone, "none"},
		{SeverityMinor, "minor"},
		{SeverityMajor, "major"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %s, want %s", tt.severity, got, tt.want)
		}
	}
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	d := Discrepancy{Kind: DiscrepancyPriceVariance, Severity: SeverityMajor, Details: "x"}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := `"severity":"major"`; !strings.Contains(string(data), want) {
		t.Errorf("expected %s in %s", want, data)
	}

	var back Discrepancy
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Severity != SeverityMajor {
		t.Errorf("expected major after round trip, got %s", back.Severity)
	}
}

func TestParseSeverity(t *testing.T) {
	if s, err := ParseSeverity(" Critical "); err != nil || s != SeverityCritical {
		t.Errorf("ParseSeverity(Critical) = %v, %v", s, err)
	}
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Error("unknown severity must fail to parse")
	}
}

func TestDiscrepancyKindIsValid(t *testing.T) {
	for _, k := range []DiscrepancyKind{
		DiscrepancyPriceVariance, DiscrepancyQuantityMismatch,
		DiscrepancyTotalVariance, DiscrepancyMissingItem, DiscrepancyExtraItem,
	} {
		if !k.IsValid() {
			t.Errorf("%s must be valid", k)
		}
	}
	if DiscrepancyKind("surcharge").IsValid() {
		t.Error("unknown kind must be invalid")
	}
}

func TestMatchMethodIsDefinitive(t *testing.T) {
	tests := []struct {
		method MatchMethod
		want   bool
	}{
		{MatchExactPOReference, true},
		{MatchSupplierProductFuzzy, true},
		{MatchProductOnlyFuzzy, false},
		{MatchNone, false},
	}
	for _, tt := range tests {
		if got := tt.method.IsDefinitive(); got != tt.want {
			t.Errorf("%s.IsDefinitive() = %v, want %v", tt.method, got, tt.want)
		}
	}
}

func TestLineItemValidate(t *testing.T) {
	valid := LineItem{
		Description: "Paracetamol 500mg Tablets",
		Quantity:    decimal.NewFromInt(100),
		UnitPrice:   decimal.RequireFromString("12.50"),
		LineTotal:   decimal.RequireFromString("1250.00"),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid line item must pass: %v", err)
	}

	noDesc := valid
	noDesc.Description = "  "
	if err := noDesc.Validate(); err == nil {
		t.Error("empty description must fail")
	}

	negQty := valid
	negQty.Quantity = decimal.NewFromInt(-1)
	if err := negQty.Validate(); err == nil {
		t.Error("negative quantity must fail")
	}

	negPrice := valid
	negPrice.UnitPrice = decimal.RequireFromString("-0.01")
	if err := negPrice.Validate(); err == nil {
		t.Error("negative unit price must fail")
	}
}

func TestExtractedInvoiceConfidenceFor(t *testing.T) {
	inv := &ExtractedInvoice{
		FieldConfidence: map[string]float64{"po_reference": 0.85},
	}
	if got := inv.ConfidenceFor("po_reference", 1.0); got != 0.85 {
		t.Errorf("expected recorded confidence 0.85, got %v", got)
	}
	if got := inv.ConfidenceFor("total", 1.0); got != 1.0 {
		t.Errorf("unscored field must use the fallback, got %v", got)
	}

	noScores := &ExtractedInvoice{}
	if got := noScores.ConfidenceFor("po_reference", 0.5); got != 0.5 {
		t.Errorf("nil map must use the fallback, got %v", got)
	}
}

func TestExtractedInvoiceValidate(t *testing.T) {
	inv := &ExtractedInvoice{
		InvoiceNumber: "INV-7001",
		LineItems: []LineItem{{
			Description: "Paracetamol 500mg Tablets",
			Quantity:    decimal.NewFromInt(100),
			UnitPrice:   decimal.RequireFromString("12.50"),
		}},
	}
	if err := inv.Validate(); err != nil {
		t.Errorf("valid invoice must pass: %v", err)
	}

	inv.InvoiceNumber = ""
	if err := inv.Validate(); err == nil {
		t.Error("empty invoice number must fail")
	}

	inv.InvoiceNumber = "INV-7001"
	inv.LineItems[0].Quantity = decimal.NewFromInt(-5)
	if err := inv.Validate(); err == nil {
		t.Error("invalid line item must fail invoice validation")
	}
}

func TestPurchaseOrderValidate(t *testing.T) {
	po := &PurchaseOrder{PONumber: "PO-2024-001", Supplier: "MedSupply Ltd"}
	if err := po.Validate(); err != nil {
		t.Errorf("valid order must pass: %v", err)
	}

	if err := (&PurchaseOrder{Supplier: "MedSupply Ltd"}).Validate(); err == nil {
		t.Error("missing PO number must fail")
	}
	if err := (&PurchaseOrder{PONumber: "PO-2024-001"}).Validate(); err == nil {
		t.Error("missing supplier must fail")
	}
}

func TestItemDescriptions(t *testing.T) {
	inv := &ExtractedInvoice{LineItems: []LineItem{
		{Description: "Paracetamol 500mg Tablets"},
		{Description: "Ibuprofen 200mg Capsules"},
	}}
	got := inv.ItemDescriptions()
	if len(got) != 2 || got[0] != "Paracetamol 500mg Tablets" || got[1] != "Ibuprofen 200mg Capsules" {
		t.Errorf("unexpected descriptions: %v", got)
	}
}

func TestHighestSeverity(t *testing.T) {
	if got := HighestSeverity(nil); got != SeverityNone {
		t.Errorf("empty list must be none, got %s", got)
	}

	got := HighestSeverity([]Discrepancy{
		{Severity: SeverityMinor},
		{Severity: SeverityCritical},
		{Severity: SeverityMajor},
	})
	if got != SeverityCritical {
		t.Errorf("expected critical, got %s", got)
	}
}

func TestMatchResultMatched(t *testing.T) {
	if (&MatchResult{Method: MatchNone}).Matched() {
		t.Error("result without an order must not report matched")
	}
	mr := &MatchResult{MatchedPO: &PurchaseOrder{PONumber: "PO-2024-001"}}
	if !mr.Matched() {
		t.Error("result with an order must report matched")
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"1250.00", "1250", false},
		{"£1,250.00", "1250", false},
		{"$99.95", "99.95", false},
		{"€ 42", "42", false},
		{"", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDecimalFromString(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDecimalFromString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.want {
			t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got.String(), tt.want)
		}
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0.0},
		{0.0, 0.0},
		{0.42, 0.42},
		{1.0, 1.0},
		{1.7, 1.0},
	}
	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
