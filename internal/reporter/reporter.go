// Package reporter renders reconciliation results for operators and for
// downstream systems.
//
// Three formats are supported: console output for interactive runs, JSON
// for downstream automation and CSV for spreadsheet review of batches.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeAlternatives  bool `json:"include_alternatives"`
	IncludeStageTraces   bool `json:"include_stage_traces"`
	IncludeDiscrepancies bool `json:"include_discrepancies"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeAlternatives:  true,
		IncludeStageTraces:   false,
		IncludeDiscrepancies: true,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.CSVDelimiter == 0 {
		return fmt.Errorf("csv delimiter cannot be empty")
	}
	return nil
}

// ReportGenerator renders invoice reports and batch summaries
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a report generator
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReportGenerator{config: config}, nil
}

// WriteBatch renders a batch result in the configured format
func (rg *ReportGenerator) WriteBatch(result *reconciler.BatchResult, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		return rg.writeBatchJSON(result, writer)
	case FormatCSV:
		return rg.writeBatchCSV(result, writer)
	default:
		return rg.writeBatchConsole(result, writer)
	}
}

// WriteReport renders a single invoice report in the configured format
func (rg *ReportGenerator) WriteReport(report *reconciler.InvoiceReport, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rg.filterReport(report))
	case FormatCSV:
		return rg.writeBatchCSV(&reconciler.BatchResult{
			Reports: []*reconciler.InvoiceReport{report},
		}, writer)
	default:
		rg.printReport(report, writer)
		return nil
	}
}

func (rg *ReportGenerator) writeBatchConsole(result *reconciler.BatchResult, writer io.Writer) error {
	fmt.Fprintf(writer, "INVOICE RECONCILIATION REPORT\n")
	if result.Summary != nil {
		fmt.Fprintf(writer, "Generated: %s\n", result.Summary.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Summary.Duration)

		fmt.Fprintf(writer, "=== SUMMARY ===\n")
		fmt.Fprintf(writer, "Invoices processed:  %d\n", result.Summary.Total)
		fmt.Fprintf(writer, "Auto approved:       %d\n", result.Summary.AutoApproved)
		fmt.Fprintf(writer, "Flagged for review:  %d\n", result.Summary.Flagged)
		fmt.Fprintf(writer, "Escalated:           %d\n", result.Summary.Escalated)
		fmt.Fprintf(writer, "Failed:              %d\n\n", result.Summary.Failed)
	}

	for _, report := range result.Reports {
		rg.printReport(report, writer)
		fmt.Fprintf(writer, "\n")
	}

	if result.Summary != nil && len(result.Summary.Failures) > 0 {
		fmt.Fprintf(writer, "=== FAILURES ===\n")
		for _, f := range result.Summary.Failures {
			fmt.Fprintf(writer, "  %s: %s\n", f.Path, f.Error)
		}
	}
	return nil
}

func (rg *ReportGenerator) printReport(report *reconciler.InvoiceReport, writer io.Writer) {
	fmt.Fprintf(writer, "--- Invoice %s ---\n", report.InvoiceNumber)
	fmt.Fprintf(writer, "Decision:    %s (risk: %s, confidence: %.2f)\n",
		report.Decision.Action, report.Decision.RiskLevel, report.Decision.OverallConfidence)
	if report.Match.Matched() {
		fmt.Fprintf(writer, "Matched PO:  %s via %s (confidence: %.2f)\n",
			report.Match.MatchedPONumber, report.Match.Method, report.Match.Confidence)
		fmt.Fprintf(writer, "Line items:  %d of %d verified\n",
			report.Match.LineItemsMatched, report.Match.LineItemsTotal)
	} else {
		fmt.Fprintf(writer, "Matched PO:  none\n")
	}
	if report.TotalVariance != nil && !report.TotalVariance.WithinTolerance {
		if report.TotalVariance.Percentage != nil {
			fmt.Fprintf(writer, "Total variance: %s (%s%%)\n",
				report.TotalVariance.Amount.StringFixed(2), report.TotalVariance.Percentage.StringFixed(2))
		} else {
			fmt.Fprintf(writer, "Total variance: %s\n", report.TotalVariance.Amount.StringFixed(2))
		}
	}

	if rg.config.IncludeDiscrepancies && len(report.Discrepancies) > 0 {
		fmt.Fprintf(writer, "Discrepancies:\n")
		for _, d := range report.Discrepancies {
			fmt.Fprintf(writer, "  [%s] %s: %s\n", d.Severity, d.Kind, d.Details)
		}
	}

	if rg.config.IncludeAlternatives && len(report.Match.AlternativeMatches) > 0 {
		fmt.Fprintf(writer, "Alternative matches:\n")
		for _, alt := range report.Match.AlternativeMatches {
			fmt.Fprintf(writer, "  %s (%s) score %.2f\n", alt.PONumber, alt.Supplier, alt.Score)
		}
	}

	fmt.Fprintf(writer, "Reasoning:   %s\n", report.Decision.Reasoning)
}

func (rg *ReportGenerator) writeBatchJSON(result *reconciler.BatchResult, writer io.Writer) error {
	filtered := make([]map[string]interface{}, 0, len(result.Reports))
	for _, report := range result.Reports {
		filtered = append(filtered, rg.filterReport(report))
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"reports": filtered,
		"summary": result.Summary,
	})
}

// filterReport drops the sections the configuration excludes
func (rg *ReportGenerator) filterReport(report *reconciler.InvoiceReport) map[string]interface{} {
	out := map[string]interface{}{
		"run_id":                report.RunID,
		"invoice_number":        report.InvoiceNumber,
		"processed_at":          report.ProcessedAt,
		"extraction_confidence": report.ExtractionConfidence,
		"document_quality":      report.DocumentQuality,
		"match":                 report.Match,
		"decision":              report.Decision,
	}
	if report.SourcePath != "" {
		out["source_path"] = report.SourcePath
	}
	if report.TotalVariance != nil {
		out["total_variance"] = report.TotalVariance
	}
	if rg.config.IncludeDiscrepancies {
		out["discrepancies"] = report.Discrepancies
	}
	if rg.config.IncludeStageTraces {
		out["stage_traces"] = report.StageTraces
	}
	return out
}

func (rg *ReportGenerator) writeBatchCSV(result *reconciler.BatchResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Invoice_Number",
			"Source_Path",
			"Action",
			"Risk_Level",
			"Overall_Confidence",
			"Matched_PO",
			"Match_Method",
			"Match_Confidence",
			"Discrepancies",
			"Highest_Severity",
			"Total_Variance_Pct",
		}
		if err := csvWriter.Write(headers); err != nil {
			return err
		}
	}

	for _, report := range result.Reports {
		variancePct := ""
		if report.TotalVariance != nil && report.TotalVariance.Percentage != nil {
			variancePct = report.TotalVariance.Percentage.StringFixed(2)
		}
		row := []string{
			report.InvoiceNumber,
			report.SourcePath,
			string(report.Decision.Action),
			string(report.Decision.RiskLevel),
			strconv.FormatFloat(report.Decision.OverallConfidence, 'f', 2, 64),
			report.Match.MatchedPONumber,
			string(report.Match.Method),
			strconv.FormatFloat(report.Match.Confidence, 'f', 2, 64),
			strconv.Itoa(len(report.Discrepancies)),
			models.HighestSeverity(report.Discrepancies).String(),
			variancePct,
		}
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}
	return csvWriter.Error()
}
