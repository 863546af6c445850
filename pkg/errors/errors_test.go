package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeInvalidData,
			message:    "invalid data",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "extraction error",
			category:   CategoryExtraction,
			code:       CodeExtractionUnavailable,
			message:    "extraction unavailable",
			cause:      errors.New("no api key"),
			expectCode: 5,
		},
		{
			name:       "contract error",
			category:   CategoryContract,
			code:       CodeNilArgument,
			message:    "nil argument",
			cause:      nil,
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Error("wrapped error must unwrap to its cause")
			}
		})
	}
}

func TestErrorContextAndSuggestion(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "database missing").
		WithContext("path", "/data/orders.json").
		WithSuggestion("Check the --po-database flag")

	if err.Context["path"] != "/data/orders.json" {
		t.Errorf("context not preserved: %v", err.Context)
	}
	if err.Suggestion == "" {
		t.Error("suggestion not preserved")
	}

	msg := err.Error()
	if msg == "" || msg == "database missing" {
		// Error() includes the suggestion when present
		t.Errorf("unexpected error string: %q", msg)
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")

	if e := FileError(CodeFileNotFound, "/tmp/x.json", cause); e.Category != CategoryFile {
		t.Errorf("FileError category = %s", e.Category)
	}
	if e := ParseError(CodeInvalidFormat, "orders.json", "bad json", cause); e.Category != CategoryParse {
		t.Errorf("ParseError category = %s", e.Category)
	}
	if e := ValidationError(CodeInvalidData, "po_number", "", cause); e.Category != CategoryValidation {
		t.Errorf("ValidationError category = %s", e.Category)
	}
	if e := ConfigurationError(CodeInvalidConfig, "matching", nil, cause); e.Category != CategoryConfiguration {
		t.Errorf("ConfigurationError category = %s", e.Category)
	}
	if e := ExtractionError(CodeExtractionResponse, "invoice.pdf", cause); e.Category != CategoryExtraction {
		t.Errorf("ExtractionError category = %s", e.Category)
	}
	if e := ContractError(CodeNegativeQuantity, "quantity -5"); e.Category != CategoryContract {
		t.Errorf("ContractError category = %s", e.Category)
	}
}

func TestIsContractViolation(t *testing.T) {
	contract := ContractError(CodeNilArgument, "nil invoice")
	if !IsContractViolation(contract) {
		t.Error("contract error must be recognized")
	}
	if IsContractViolation(New(CategoryFile, CodeFileNotFound, "missing")) {
		t.Error("file error is not a contract violation")
	}
	if IsContractViolation(nil) {
		t.Error("nil is not a contract violation")
	}
}

func TestAsReconcilerError(t *testing.T) {
	inner := New(CategoryParse, CodeInvalidFormat, "bad record")
	wrapped := fmt.Errorf("loading database: %w", inner)

	got, ok := AsReconcilerError(wrapped)
	if !ok {
		t.Fatal("wrapped ReconcilerError must be found")
	}
	if got.Code != CodeInvalidFormat {
		t.Errorf("expected code %s, got %s", CodeInvalidFormat, got.Code)
	}

	if _, ok := AsReconcilerError(errors.New("plain")); ok {
		t.Error("plain error must not convert")
	}
}

func TestErrorSummary(t *testing.T) {
	summary := NewErrorSummary([]*ReconcilerError{
		New(CategoryFile, CodeFileNotFound, "a"),
		New(CategoryParse, CodeInvalidFormat, "b"),
		New(CategoryParse, CodeInvalidData, "c"),
	})

	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 {
		t.Errorf("expected 2 parse errors, got %d", summary.ByCategory[CategoryParse])
	}
	if summary.Error() == "" {
		t.Error("summary must render an error string")
	}
	if summary.GetExitCode() == 0 {
		t.Error("non-empty summary must map to a non-zero exit code")
	}
}
