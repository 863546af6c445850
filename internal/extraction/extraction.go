// Package extraction turns invoice documents into structured
// ExtractedInvoice records with a confidence score.
//
// Two extractors are provided: GeminiExtractor sends the document to the
// Gemini API for structured extraction, and FileExtractor reads records
// that were extracted upstream and saved as JSON. Both grade the result
// by field presence so downstream stages can reason about how much to
// trust the data.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// DocumentQuality grades how legible and complete the source document
// appeared to the extractor.
type DocumentQuality string

const (
	QualityHigh   DocumentQuality = "high"
	QualityMedium DocumentQuality = "medium"
	QualityLow    DocumentQuality = "low"
)

// Result is the outcome of extracting one document. A failed extraction
// is reported as a zero-confidence Result rather than an error whenever
// the document was at least readable.
type Result struct {
	Invoice    *models.ExtractedInvoice `json:"invoice"`
	Confidence float64                  `json:"confidence"`
	Quality    DocumentQuality          `json:"document_quality"`
	Reasoning  string                   `json:"reasoning,omitempty"`
}

// Extractor extracts a structured invoice from a document on disk
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// pennyTolerance absorbs rounding noise in line total arithmetic
var pennyTolerance = decimal.RequireFromString("0.01")

// scoredFields are the invoice fields that contribute to the
// field-presence confidence score.
var scoredFields = []string{
	"invoice_number", "invoice_date", "supplier_name",
	"po_reference", "line_items", "total",
}

// ScoreExtraction grades an extracted invoice by field presence: a 0.70
// base for a parseable document, up to 0.25 for present fields, and a
// 0.05 boost when every line total is arithmetically consistent.
func ScoreExtraction(inv *models.ExtractedInvoice) float64 {
	if inv == nil {
		return 0.0
	}

	present := 0
	for _, field := range scoredFields {
		if fieldPresent(inv, field) {
			present++
		}
	}

	confidence := 0.70 + 0.25*float64(present)/float64(len(scoredFields))
	if linesConsistent(inv) {
		confidence += 0.05
	}
	return models.ClampConfidence(confidence)
}

// GradeQuality maps the extraction confidence to a document quality grade
func GradeQuality(confidence float64) DocumentQuality {
	switch {
	case confidence >= 0.90:
		return QualityHigh
	case confidence >= 0.70:
		return QualityMedium
	default:
		return QualityLow
	}
}

func fieldPresent(inv *models.ExtractedInvoice, field string) bool {
	switch field {
	case "invoice_number":
		return strings.TrimSpace(inv.InvoiceNumber) != ""
	case "invoice_date":
		return strings.TrimSpace(inv.InvoiceDate) != ""
	case "supplier_name":
		return strings.TrimSpace(inv.SupplierName) != ""
	case "po_reference":
		return strings.TrimSpace(inv.POReference) != ""
	case "line_items":
		return len(inv.LineItems) > 0
	case "total":
		return !inv.Total.IsZero()
	default:
		return false
	}
}

// linesConsistent reports whether every line total equals quantity times
// unit price. Rounding noise below a penny is tolerated.
func linesConsistent(inv *models.ExtractedInvoice) bool {
	if len(inv.LineItems) == 0 {
		return false
	}
	for _, item := range inv.LineItems {
		expected := item.Quantity.Mul(item.UnitPrice)
		if expected.Sub(item.LineTotal).Abs().GreaterThan(pennyTolerance) {
			return false
		}
	}
	return true
}

// FileExtractor reads invoices that were extracted upstream and saved as
// JSON documents. It exists for batch reprocessing and for running the
// pipeline without API access.
type FileExtractor struct {
	logger logger.Logger
}

// NewFileExtractor creates a file-based extractor
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{
		logger: logger.GetGlobalLogger().WithComponent("extraction"),
	}
}

// Extract reads a pre-extracted invoice record from a JSON file
func (e *FileExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}

	var inv models.ExtractedInvoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path,
			"invoice record is not valid JSON", err)
	}

	if err := inv.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidData, "invoice", path, err)
	}

	confidence := ScoreExtraction(&inv)
	e.logger.WithFields(logger.Fields{
		"path":       path,
		"invoice":    inv.InvoiceNumber,
		"confidence": confidence,
	}).Debug("loaded pre-extracted invoice")

	return &Result{
		Invoice:    &inv,
		Confidence: confidence,
		Quality:    GradeQuality(confidence),
		Reasoning:  fmt.Sprintf("loaded pre-extracted record from %s", path),
	}, nil
}
