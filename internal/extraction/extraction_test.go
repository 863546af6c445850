package extraction

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

func fullInvoice() *models.ExtractedInvoice {
	price := decimal.RequireFromString("12.50")
	qty := decimal.NewFromInt(100)
	return &models.ExtractedInvoice{
		InvoiceNumber: "INV-7001",
		InvoiceDate:   "2024-01-15",
		SupplierName:  "MedSupply Ltd",
		POReference:   "PO-2024-001",
		LineItems: []models.LineItem{{
			Description: "Paracetamol 500mg Tablets",
			Quantity:    qty,
			UnitPrice:   price,
			LineTotal:   price.Mul(qty),
		}},
		Total:    decimal.RequireFromString("1250.00"),
		Currency: "GBP",
	}
}

func TestScoreExtraction(t *testing.T) {
	full := ScoreExtraction(fullInvoice())
	if full < 0.999 || full > 1.0 {
		t.Errorf("complete consistent invoice must score 1.0, got %v", full)
	}

	inv := fullInvoice()
	inv.POReference = ""
	partial := ScoreExtraction(inv)
	if partial >= full {
		t.Errorf("missing field must lower the score: %v vs %v", partial, full)
	}

	inv = fullInvoice()
	inv.LineItems[0].LineTotal = decimal.RequireFromString("999.00")
	inconsistent := ScoreExtraction(inv)
	if inconsistent >= full {
		t.Errorf("inconsistent line arithmetic must lower the score: %v vs %v", inconsistent, full)
	}

	if got := ScoreExtraction(nil); got != 0.0 {
		t.Errorf("nil invoice must score 0.0, got %v", got)
	}

	empty := ScoreExtraction(&models.ExtractedInvoice{})
	if empty != 0.70 {
		t.Errorf("parseable but empty record scores the 0.70 base, got %v", empty)
	}
}

func TestGradeQuality(t *testing.T) {
	tests := []struct {
		confidence float64
		want       DocumentQuality
	}{
		{1.0, QualityHigh},
		{0.90, QualityHigh},
		{0.89, QualityMedium},
		{0.70, QualityMedium},
		{0.69, QualityLow},
		{0.0, QualityLow},
	}
	for _, tt := range tests {
		if got := GradeQuality(tt.confidence); got != tt.want {
			t.Errorf("GradeQuality(%v) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestFileExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.json")
	content := `{
		"invoice_number": "INV-7001",
		"invoice_date": "2024-01-15",
		"supplier_name": "MedSupply Ltd",
		"po_reference": "PO-2024-001",
		"line_items": [
			{"description": "Paracetamol 500mg Tablets", "quantity": "100", "unit": "boxes", "unit_price": "12.50", "line_total": "1250.00"}
		],
		"total": "1250.00",
		"currency": "GBP",
		"field_confidence": {"po_reference": 0.95}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := NewFileExtractor().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Invoice.InvoiceNumber != "INV-7001" {
		t.Errorf("expected INV-7001, got %s", result.Invoice.InvoiceNumber)
	}
	if result.Confidence < 0.90 {
		t.Errorf("complete record should grade high, got %v", result.Confidence)
	}
	if result.Quality != QualityHigh {
		t.Errorf("expected high quality, got %s", result.Quality)
	}
	if got := result.Invoice.ConfidenceFor("po_reference", 0); got != 0.95 {
		t.Errorf("field confidence must survive loading, got %v", got)
	}
}

func TestFileExtractorRepoFixture(t *testing.T) {
	path := filepath.Join("..", "..", "testdata", "invoices", "inv-7001.json")

	result, err := NewFileExtractor().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Invoice.POReference != "PO-2024-001" {
		t.Errorf("expected PO-2024-001, got %s", result.Invoice.POReference)
	}
	if len(result.Invoice.LineItems) != 2 {
		t.Errorf("expected 2 line items, got %d", len(result.Invoice.LineItems))
	}
	if result.Quality != QualityHigh {
		t.Errorf("expected high quality, got %s", result.Quality)
	}
}

func TestFileExtractorErrors(t *testing.T) {
	e := NewFileExtractor()
	ctx := context.Background()

	if _, err := e.Extract(ctx, "/nonexistent/invoice.json"); err == nil {
		t.Error("missing file must error")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Extract(ctx, bad); err == nil {
		t.Error("malformed JSON must error")
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"invoice_number": ""}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Extract(ctx, invalid); err == nil {
		t.Error("record failing validation must error")
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"literal newline in string", "{\"a\": \"x\ny\"}", `{"a": "x\ny"}`},
		{"newline outside string kept", "{\n\"a\": 1}", "{\n\"a\": 1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repairJSON(tt.input); got != tt.want {
				t.Errorf("repairJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMimeTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"invoice.pdf", "application/pdf"},
		{"scan.PNG", "image/png"},
		{"photo.jpeg", "image/jpeg"},
		{"unknown.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := mimeTypeFor(tt.path); got != tt.want {
			t.Errorf("mimeTypeFor(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestGeminiResponseDecoding(t *testing.T) {
	payload := `{
		"invoice_number": "INV-7003",
		"invoice_date": "2024-02-01",
		"supplier_name": "MedSupply Ltd",
		"po_reference": "PO-2024-003",
		"line_items": [
			{"description": "Ibuprofen 200mg Capsules", "quantity": "50", "unit": "boxes", "unit_price": "£80.00", "line_total": "£4,000.00"}
		],
		"subtotal": "£4,000.00",
		"tax_rate": "20",
		"tax_amount": "£800.00",
		"total": "£4,800.00",
		"currency": "GBP",
		"field_confidence": {"total": 0.9}
	}`

	var wire geminiInvoice
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	inv := wire.toInvoice()

	if got := inv.Total; !got.Equal(decimal.RequireFromString("4800.00")) {
		t.Errorf("total with currency symbol and separator must parse, got %s", got)
	}
	if got := inv.LineItems[0].LineTotal; !got.Equal(decimal.RequireFromString("4000.00")) {
		t.Errorf("line total must parse, got %s", got)
	}
	if got := inv.LineItems[0].Quantity; !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("quantity must parse, got %s", got)
	}
	if err := inv.Validate(); err != nil {
		t.Errorf("decoded invoice must validate: %v", err)
	}
	if got := inv.ConfidenceFor("total", 0); got != 0.9 {
		t.Errorf("field confidence must carry over, got %v", got)
	}
}

func TestParseAmountDegradesToZero(t *testing.T) {
	tests := []struct {
		input string
		want  decimal.Decimal
	}{
		{"£1,250.00", decimal.RequireFromString("1250.00")},
		{"$99.95", decimal.RequireFromString("99.95")},
		{"", decimal.Zero},
		{"n/a", decimal.Zero},
	}
	for _, tt := range tests {
		if got := parseAmount(tt.input); !got.Equal(tt.want) {
			t.Errorf("parseAmount(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestNewGeminiExtractorRequiresKey(t *testing.T) {
	if _, err := NewGeminiExtractor(context.Background(), &GeminiConfig{}); err == nil {
		t.Error("missing api key must error at construction")
	}
	if _, err := NewGeminiExtractor(context.Background(), nil); err == nil {
		t.Error("nil config must error at construction")
	}
}
