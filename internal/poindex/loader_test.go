package poindex

import (
	"os"
	"path/filepath"
	"testing"

	"invoice-reconciliation-service/pkg/errors"
)

func writeDatabase(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "purchase_orders.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

const validDatabase = `{
  "purchase_orders": [
    {
      "po_number": "PO-2024-001",
      "supplier": "MedSupply Ltd",
      "date": "2024-03-01",
      "line_items": [
        {"description": "Paracetamol 500mg Tablets", "quantity": "100", "unit": "box", "unit_price": "12.50", "line_total": "1250.00"}
      ],
      "total": "1250.00",
      "currency": "GBP"
    },
    {
      "po_number": "PO-2024-002",
      "supplier": "PharmaDirect",
      "date": "2024-03-04",
      "line_items": [
        {"description": "Amoxicillin 250mg Capsules", "quantity": "50", "unit": "box", "unit_price": "22.00", "line_total": "1100.00"}
      ],
      "total": "1100.00",
      "currency": "GBP"
    }
  ]
}`

func TestLoadFile(t *testing.T) {
	idx, err := LoadFile(writeDatabase(t, validDatabase))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if idx.Size() != 2 {
		t.Errorf("expected 2 orders, got %d", idx.Size())
	}
	po, ok := idx.LookupByID("PO-2024-002")
	if !ok || po.Supplier != "PharmaDirect" {
		t.Errorf("expected PharmaDirect for PO-2024-002, got %+v", po)
	}
}

func TestLoadFileRepoFixture(t *testing.T) {
	idx, err := LoadFile(filepath.Join("..", "..", "testdata", "purchase_orders.json"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if idx.Size() != 5 {
		t.Errorf("expected 5 orders, got %d", idx.Size())
	}
	po, ok := idx.LookupByID("PO-2024-005")
	if !ok {
		t.Fatal("expected PO-2024-005 in the fixture")
	}
	if po.Supplier != "MedSupply Ltd" || len(po.LineItems) != 2 {
		t.Errorf("unexpected PO-2024-005 record: %+v", po)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Category != errors.CategoryFile {
		t.Errorf("expected a file error, got %v", err)
	}
}

func TestLoadFileBadJSON(t *testing.T) {
	_, err := LoadFile(writeDatabase(t, `{"purchase_orders": [`))
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Category != errors.CategoryParse {
		t.Errorf("expected a parse error, got %v", err)
	}
}

func TestLoadFileInvalidRecord(t *testing.T) {
	const missingSupplier = `{
  "purchase_orders": [
    {"po_number": "PO-2024-001", "supplier": "", "line_items": [], "total": "0", "currency": "GBP"}
  ]
}`
	_, err := LoadFile(writeDatabase(t, missingSupplier))
	if err == nil {
		t.Fatal("expected an error for an invalid record")
	}
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Category != errors.CategoryParse || re.Code != errors.CodeInvalidData {
		t.Errorf("expected invalid data parse error, got %v", err)
	}
}

func TestLoadFileDuplicateNumbers(t *testing.T) {
	const duplicated = `{
  "purchase_orders": [
    {"po_number": "PO-2024-001", "supplier": "MedSupply Ltd", "line_items": [], "total": "0", "currency": "GBP"},
    {"po_number": "po-2024-001", "supplier": "PharmaDirect", "line_items": [], "total": "0", "currency": "GBP"}
  ]
}`
	_, err := LoadFile(writeDatabase(t, duplicated))
	if err == nil {
		t.Fatal("expected an error for duplicate purchase order numbers")
	}
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Code != errors.CodeInvalidData {
		t.Errorf("expected invalid data error, got %v", err)
	}
}
