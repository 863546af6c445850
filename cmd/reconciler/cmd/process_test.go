package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"invoice-reconciliation-service/cmd/reconciler/config"
)

func TestValidateFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := validateFileExists(path, "purchase order database"); err != nil {
		t.Errorf("existing file must validate: %v", err)
	}
	if err := validateFileExists(filepath.Join(dir, "missing.json"), "purchase order database"); err == nil {
		t.Error("missing file must fail validation")
	}
	if err := validateFileExists(dir, "purchase order database"); err == nil {
		t.Error("directory must fail validation")
	}
	if err := validateFileExists("", "purchase order database"); err == nil {
		t.Error("empty path must fail validation")
	}
}

func TestCollectInvoicePaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "notes.txt", "scan.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := collectInvoicePaths(dir, map[string]bool{".json": true})
	if err != nil {
		t.Fatalf("collectInvoicePaths() error = %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("expected 2 JSON documents, got %d: %v", len(paths), paths)
	}
	if filepath.Base(paths[0]) != "a.json" || filepath.Base(paths[1]) != "b.json" {
		t.Errorf("paths must be sorted: %v", paths)
	}
}

func TestExtractorKindExtensions(t *testing.T) {
	fileExts := extractorKindExtensions(config.ExtractorFile)
	if !fileExts[".json"] || fileExts[".pdf"] {
		t.Errorf("file backend must accept only JSON records: %v", fileExts)
	}

	geminiExts := extractorKindExtensions(config.ExtractorGemini)
	if !geminiExts[".pdf"] || !geminiExts[".png"] || geminiExts[".json"] {
		t.Errorf("gemini backend must accept documents, not records: %v", geminiExts)
	}
}
