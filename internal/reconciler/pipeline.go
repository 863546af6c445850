// Package reconciler orchestrates the reconciliation workflow.
//
// The per-invoice pipeline runs match, detect and decide in order against
// a shared read-only purchase order index. The orchestrator wraps the
// pipeline with extraction, bounded concurrency for batches, review
// routing and progress tracking.
package reconciler

import (
	"time"

	"github.com/google/uuid"

	"invoice-reconciliation-service/internal/detector"
	"invoice-reconciliation-service/internal/extraction"
	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/poindex"
	"invoice-reconciliation-service/internal/resolution"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// StageTrace records the timing of one pipeline stage for a single invoice
type StageTrace struct {
	Stage     string        `json:"stage"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Note      string        `json:"note,omitempty"`
}

// InvoiceReport is the complete reconciliation record for one invoice
type InvoiceReport struct {
	RunID                string                     `json:"run_id"`
	InvoiceNumber        string                     `json:"invoice_number"`
	SourcePath           string                     `json:"source_path,omitempty"`
	ProcessedAt          time.Time                  `json:"processed_at"`
	ExtractionConfidence float64                    `json:"extraction_confidence"`
	DocumentQuality      extraction.DocumentQuality `json:"document_quality"`
	Match                *models.MatchResult        `json:"match"`
	Discrepancies        []models.Discrepancy       `json:"discrepancies"`
	TotalVariance        *models.TotalVariance      `json:"total_variance,omitempty"`
	Decision             *models.Decision           `json:"decision"`
	StageTraces          []StageTrace               `json:"stage_traces,omitempty"`
}

// PipelineConfig bundles the stage configurations
type PipelineConfig struct {
	Matching   *matcher.MatchingConfig
	Detection  *detector.DetectionConfig
	Resolution *resolution.ResolutionConfig
}

// DefaultPipelineConfig returns the standard stage configurations
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Matching:   matcher.DefaultMatchingConfig(),
		Detection:  detector.DefaultDetectionConfig(),
		Resolution: resolution.DefaultResolutionConfig(),
	}
}

// Validate validates every stage configuration
func (c *PipelineConfig) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", nil, err)
	}
	if err := c.Detection.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "detection", nil, err)
	}
	if err := c.Resolution.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "resolution", nil, err)
	}
	return nil
}

// Pipeline runs the matching, detection and resolution stages for single
// invoices. The pipeline is stateless apart from the shared read-only
// index, so one instance serves concurrent workers.
type Pipeline struct {
	matcher  *matcher.TieredMatcher
	detector *detector.Detector
	engine   *resolution.Engine
	logger   logger.Logger
}

// NewPipeline creates a pipeline over the given purchase order index.
// A nil config uses DefaultPipelineConfig.
func NewPipeline(index *poindex.Index, config *PipelineConfig) (*Pipeline, error) {
	if index == nil {
		return nil, errors.ContractError(errors.CodeNilArgument, "purchase order index cannot be nil")
	}
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		matcher:  matcher.NewTieredMatcher(index, config.Matching),
		detector: detector.NewDetector(config.Detection),
		engine:   resolution.NewEngine(config.Resolution),
		logger:   logger.GetGlobalLogger().WithComponent("pipeline"),
	}, nil
}

// Process reconciles one extracted invoice and returns the full report.
// The returned error signals a caller contract violation; data problems
// surface inside the report as discrepancies and decisions.
func (p *Pipeline) Process(ext *extraction.Result, sourcePath string) (*InvoiceReport, error) {
	if ext == nil || ext.Invoice == nil {
		return nil, errors.ContractError(errors.CodeNilArgument, "extraction result cannot be nil")
	}

	report := &InvoiceReport{
		RunID:                uuid.NewString(),
		InvoiceNumber:        ext.Invoice.InvoiceNumber,
		SourcePath:           sourcePath,
		ProcessedAt:          time.Now().UTC(),
		ExtractionConfidence: ext.Confidence,
		DocumentQuality:      ext.Quality,
	}

	log := p.logger.WithFields(logger.Fields{
		"run_id":  report.RunID,
		"invoice": report.InvoiceNumber,
	})

	var match *models.MatchResult
	report.trace("match", func() error {
		match = p.matcher.Match(ext.Invoice)
		return nil
	})
	report.Match = match

	if err := report.trace("detect", func() error {
		var err error
		report.Discrepancies, report.TotalVariance, err = p.detector.Detect(ext.Invoice, match.MatchedPO)
		return err
	}); err != nil {
		return nil, err
	}

	if err := report.trace("decide", func() error {
		var err error
		report.Decision, err = p.engine.Decide(&resolution.Evidence{
			Invoice:              ext.Invoice,
			ExtractionConfidence: ext.Confidence,
			Match:                match,
			Discrepancies:        report.Discrepancies,
			TotalVariance:        report.TotalVariance,
		})
		return err
	}); err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"action":     string(report.Decision.Action),
		"confidence": report.Decision.OverallConfidence,
		"method":     string(match.Method),
	}).Info("invoice reconciled")

	return report, nil
}

// trace runs a stage and appends its timing to the report
func (r *InvoiceReport) trace(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.StageTraces = append(r.StageTraces, StageTrace{
		Stage:     stage,
		StartedAt: start.UTC(),
		Duration:  time.Since(start),
	})
	return err
}
