package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"invoice-reconciliation-service/internal/extraction"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/review"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// OrchestratorConfig configures batch behavior
type OrchestratorConfig struct {
	// MaxConcurrency bounds the number of invoices processed in parallel
	MaxConcurrency int `json:"max_concurrency"`

	// ContinueOnError keeps a batch running when individual documents
	// fail; failures are collected into the batch summary. Contract
	// violations abort the batch regardless.
	ContinueOnError bool `json:"continue_on_error"`

	// ProgressLogInterval is the minimum time between progress log lines
	ProgressLogInterval time.Duration `json:"progress_log_interval"`
}

// DefaultOrchestratorConfig returns the standard batch configuration
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		MaxConcurrency:      4,
		ContinueOnError:     true,
		ProgressLogInterval: 5 * time.Second,
	}
}

// Validate validates the orchestrator configuration
func (c *OrchestratorConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.ProgressLogInterval < 0 {
		return fmt.Errorf("progress_log_interval cannot be negative, got %s", c.ProgressLogInterval)
	}
	return nil
}

// DocumentFailure records one document that could not be processed
type DocumentFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BatchSummary aggregates the outcome of a batch run
type BatchSummary struct {
	Total        int               `json:"total"`
	AutoApproved int               `json:"auto_approved"`
	Flagged      int               `json:"flagged"`
	Escalated    int               `json:"escalated"`
	Failed       int               `json:"failed"`
	Failures     []DocumentFailure `json:"failures,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Duration     time.Duration     `json:"duration"`
}

// BatchResult is the full outcome of a batch run: one report per
// successfully processed document plus the summary. Errors aggregates
// the per-document failures for exit-code selection; it is nil when
// every document processed.
type BatchResult struct {
	Reports []*InvoiceReport     `json:"reports"`
	Summary *BatchSummary        `json:"summary"`
	Errors  *errors.ErrorSummary `json:"-"`
}

// Orchestrator drives extraction, reconciliation and review routing for
// single documents and batches.
type Orchestrator struct {
	extractor extraction.Extractor
	pipeline  *Pipeline
	reviewer  review.Reviewer
	config    *OrchestratorConfig
	logger    logger.Logger
}

// NewOrchestrator creates an orchestrator. The reviewer may be nil when
// no review routing is wanted; a nil config uses
// DefaultOrchestratorConfig.
func NewOrchestrator(extractor extraction.Extractor, pipeline *Pipeline, reviewer review.Reviewer, config *OrchestratorConfig) (*Orchestrator, error) {
	if extractor == nil {
		return nil, errors.ContractError(errors.CodeNilArgument, "extractor cannot be nil")
	}
	if pipeline == nil {
		return nil, errors.ContractError(errors.CodeNilArgument, "pipeline cannot be nil")
	}
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "orchestrator", nil, err)
	}

	return &Orchestrator{
		extractor: extractor,
		pipeline:  pipeline,
		reviewer:  reviewer,
		config:    config,
		logger:    logger.GetGlobalLogger().WithComponent("orchestrator"),
	}, nil
}

// ProcessDocument extracts and reconciles one invoice document
func (o *Orchestrator) ProcessDocument(ctx context.Context, path string) (*InvoiceReport, error) {
	ext, err := o.extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	report, err := o.pipeline.Process(ext, path)
	if err != nil {
		return nil, err
	}

	if err := o.routeForReview(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// ProcessBatch reconciles many documents with bounded concurrency.
// Reports come back ordered by source path regardless of completion
// order. With ContinueOnError set, per-document failures land in the
// summary instead of aborting the batch.
func (o *Orchestrator) ProcessBatch(ctx context.Context, paths []string) (*BatchResult, error) {
	started := time.Now().UTC()

	summary := &BatchSummary{
		Total:     len(paths),
		StartedAt: started,
	}
	if len(paths) == 0 {
		return &BatchResult{Reports: []*InvoiceReport{}, Summary: summary}, nil
	}

	o.logger.WithFields(logger.Fields{
		"documents":   len(paths),
		"concurrency": o.config.MaxConcurrency,
	}).Info("starting batch reconciliation")

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation:   "batch_reconciliation",
		Total:       int64(len(paths)),
		LogInterval: o.config.ProgressLogInterval,
		Logger:      o.logger,
	})

	var mu sync.Mutex
	reports := make([]*InvoiceReport, 0, len(paths))
	var failures []batchFailure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxConcurrency)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			report, err := o.ProcessDocument(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				failures = append(failures, batchFailure{path: path, err: asReconcilerError(err)})
				progress.Increment()
				// Contract violations signal a caller bug, not a bad
				// document, and abort the batch regardless of policy.
				if o.config.ContinueOnError && !errors.IsContractViolation(err) {
					o.logger.WithError(err).WithField("path", path).Error("document failed")
					return nil
				}
				return err
			}

			reports = append(reports, report)
			summary.count(report.Decision.Action)
			progress.Increment()
			return nil
		})
	}

	err := g.Wait()
	progress.Done()
	summary.Duration = time.Since(started)

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].SourcePath < reports[j].SourcePath
	})
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].path < failures[j].path
	})

	var errSummary *errors.ErrorSummary
	if len(failures) > 0 {
		failureErrs := make([]*errors.ReconcilerError, 0, len(failures))
		for _, f := range failures {
			summary.Failures = append(summary.Failures, DocumentFailure{Path: f.path, Error: f.err.Error()})
			failureErrs = append(failureErrs, f.err)
		}
		errSummary = errors.NewErrorSummary(failureErrs)
	}

	o.logger.WithFields(logger.Fields{
		"auto_approved": summary.AutoApproved,
		"flagged":       summary.Flagged,
		"escalated":     summary.Escalated,
		"failed":        summary.Failed,
		"duration":      summary.Duration.String(),
	}).Info("batch reconciliation finished")

	result := &BatchResult{Reports: reports, Summary: summary, Errors: errSummary}
	if err != nil {
		return result, err
	}
	return result, nil
}

// batchFailure pairs a failed document with its classified error until
// the batch settles and both orderings are derived from it.
type batchFailure struct {
	path string
	err  *errors.ReconcilerError
}

// asReconcilerError classifies an arbitrary failure for the summary
func asReconcilerError(err error) *errors.ReconcilerError {
	if re, ok := errors.AsReconcilerError(err); ok {
		return re
	}
	return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, err.Error())
}

// routeForReview submits flagged and escalated invoices to the reviewer
func (o *Orchestrator) routeForReview(ctx context.Context, report *InvoiceReport) error {
	if o.reviewer == nil || report.Decision.Action == models.ActionAutoApprove {
		return nil
	}
	return o.reviewer.Submit(ctx, &review.Request{
		InvoiceNumber: report.InvoiceNumber,
		Action:        report.Decision.Action,
		RiskLevel:     report.Decision.RiskLevel,
		Reasoning:     report.Decision.Reasoning,
		Discrepancies: report.Discrepancies,
	})
}

func (s *BatchSummary) count(action models.Action) {
	switch action {
	case models.ActionAutoApprove:
		s.AutoApproved++
	case models.ActionFlagForReview:
		s.Flagged++
	case models.ActionEscalateToHuman:
		s.Escalated++
	}
}
