// Package resolution turns matching and detection evidence into a final
// recommendation for each invoice.
//
// Decide is a pure function of its inputs: the same evidence always
// yields the same action, confidence, criteria lists and reasoning text.
// Escalation conditions are checked first, then the automatic approval
// criteria; anything in between lands in manual review.
package resolution

import (
	"fmt"
	"strings"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// ResolutionConfig holds the decision policy thresholds
type ResolutionConfig struct {
	// EscalationConfidence is the extraction confidence below which an
	// invoice always goes to a human
	EscalationConfidence float64 `json:"escalation_confidence"`

	// ApprovalExtractionConfidence is the minimum extraction confidence
	// for automatic approval
	ApprovalExtractionConfidence float64 `json:"approval_extraction_confidence"`

	// ApprovalMatchConfidence is the minimum match confidence for
	// automatic approval on a fuzzy supplier+product match
	ApprovalMatchConfidence float64 `json:"approval_match_confidence"`
}

// DefaultResolutionConfig returns the standard decision policy
func DefaultResolutionConfig() *ResolutionConfig {
	return &ResolutionConfig{
		EscalationConfidence:         0.70,
		ApprovalExtractionConfidence: 0.90,
		ApprovalMatchConfidence:      0.90,
	}
}

// Validate validates the resolution configuration
func (c *ResolutionConfig) Validate() error {
	if c.EscalationConfidence < 0 || c.EscalationConfidence > 1 {
		return fmt.Errorf("escalation_confidence must be in [0, 1], got %v", c.EscalationConfidence)
	}
	if c.ApprovalExtractionConfidence < 0 || c.ApprovalExtractionConfidence > 1 {
		return fmt.Errorf("approval_extraction_confidence must be in [0, 1], got %v", c.ApprovalExtractionConfidence)
	}
	if c.ApprovalMatchConfidence < 0 || c.ApprovalMatchConfidence > 1 {
		return fmt.Errorf("approval_match_confidence must be in [0, 1], got %v", c.ApprovalMatchConfidence)
	}
	if c.EscalationConfidence > c.ApprovalExtractionConfidence {
		return fmt.Errorf("escalation_confidence (%v) cannot exceed approval_extraction_confidence (%v)",
			c.EscalationConfidence, c.ApprovalExtractionConfidence)
	}
	return nil
}

// Clone returns a copy of the configuration
func (c *ResolutionConfig) Clone() *ResolutionConfig {
	clone := *c
	return &clone
}

// Evidence is everything the decision policy looks at for one invoice
type Evidence struct {
	Invoice              *models.ExtractedInvoice
	ExtractionConfidence float64
	Match                *models.MatchResult
	Discrepancies        []models.Discrepancy
	TotalVariance        *models.TotalVariance
}

// Engine applies the resolution policy
type Engine struct {
	config *ResolutionConfig
	logger logger.Logger
}

// NewEngine creates a resolution engine. A nil config uses
// DefaultResolutionConfig.
func NewEngine(config *ResolutionConfig) *Engine {
	if config == nil {
		config = DefaultResolutionConfig()
	}
	return &Engine{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("resolution"),
	}
}

// Config returns the active resolution configuration
func (e *Engine) Config() *ResolutionConfig {
	return e.config
}

// Decide produces the final recommendation for one invoice. The overall
// confidence is the minimum of the extraction and match confidences, so
// one weak stage caps the whole pipeline. The returned error signals a
// caller contract violation only.
func (e *Engine) Decide(ev *Evidence) (*models.Decision, error) {
	if ev == nil || ev.Match == nil {
		return nil, errors.ContractError(errors.CodeNilArgument, "evidence and match result cannot be nil")
	}

	overall := ev.ExtractionConfidence
	if ev.Match.Confidence < overall {
		overall = ev.Match.Confidence
	}
	overall = models.ClampConfidence(overall)

	highest := models.HighestSeverity(ev.Discrepancies)

	var met, violated []string

	// Escalation conditions, any one is decisive
	if !ev.Match.Matched() {
		violated = append(violated, "no purchase order matched")
	}
	if ev.ExtractionConfidence < e.config.EscalationConfidence {
		violated = append(violated, fmt.Sprintf("extraction confidence %.2f below escalation floor %.2f",
			ev.ExtractionConfidence, e.config.EscalationConfidence))
	}
	if highest >= models.SeverityCritical {
		violated = append(violated, "critical discrepancy present")
	}

	if len(violated) > 0 {
		decision := &models.Decision{
			Action:            models.ActionEscalateToHuman,
			OverallConfidence: overall,
			RiskLevel:         models.RiskHigh,
			CriteriaMet:       met,
			CriteriaViolated:  violated,
			Reasoning:         e.reasoning(ev, models.ActionEscalateToHuman, violated),
		}
		e.logDecision(ev, decision)
		return decision, nil
	}

	// Automatic approval criteria, all must hold
	approve := true

	switch {
	case !ev.Match.Method.IsDefinitive():
		approve = false
		violated = append(violated, fmt.Sprintf("match method %s is not definitive enough for automatic approval",
			ev.Match.Method))
	case ev.Match.Method == models.MatchExactPOReference:
		met = append(met, "matched by exact purchase order reference")
	case ev.Match.Confidence >= e.config.ApprovalMatchConfidence:
		met = append(met, fmt.Sprintf("supplier and product match at confidence %.2f", ev.Match.Confidence))
	default:
		approve = false
		violated = append(violated, fmt.Sprintf("match confidence %.2f below approval threshold %.2f",
			ev.Match.Confidence, e.config.ApprovalMatchConfidence))
	}

	if ev.Invoice != nil && strings.TrimSpace(ev.Invoice.POReference) == "" {
		violated = append(violated, "invoice carries no purchase order reference")
	}

	if ev.ExtractionConfidence >= e.config.ApprovalExtractionConfidence {
		met = append(met, fmt.Sprintf("extraction confidence %.2f meets approval threshold", ev.ExtractionConfidence))
	} else {
		approve = false
		violated = append(violated, fmt.Sprintf("extraction confidence %.2f below approval threshold %.2f",
			ev.ExtractionConfidence, e.config.ApprovalExtractionConfidence))
	}

	if highest == models.SeverityNone {
		met = append(met, "no discrepancies above tolerance")
	} else {
		approve = false
		violated = append(violated, fmt.Sprintf("%s discrepancy present", highest))
	}

	if ev.TotalVariance == nil || ev.TotalVariance.WithinTolerance {
		met = append(met, "invoice total within tolerance of order total")
	} else {
		approve = false
		detail := "invoice total deviates from order total"
		if ev.TotalVariance.Percentage != nil {
			detail = fmt.Sprintf("invoice total deviates from order total by %s%%",
				ev.TotalVariance.Percentage.StringFixed(2))
		}
		violated = append(violated, detail)
	}

	action := models.ActionFlagForReview
	risk := models.RiskMedium
	if approve && len(violated) == 0 {
		action = models.ActionAutoApprove
		risk = models.RiskLow
	}

	decision := &models.Decision{
		Action:            action,
		OverallConfidence: overall,
		RiskLevel:         risk,
		CriteriaMet:       met,
		CriteriaViolated:  violated,
		Reasoning:         e.reasoning(ev, action, violated),
	}
	e.logDecision(ev, decision)
	return decision, nil
}

// reasoning assembles the human-readable explanation from fixed templates
func (e *Engine) reasoning(ev *Evidence, action models.Action, violated []string) string {
	var b strings.Builder

	switch action {
	case models.ActionAutoApprove:
		b.WriteString(fmt.Sprintf("Invoice matched purchase order %s with every approval criterion satisfied.",
			ev.Match.MatchedPONumber))
	case models.ActionFlagForReview:
		b.WriteString(fmt.Sprintf("Invoice matched purchase order %s but needs review: %s.",
			ev.Match.MatchedPONumber, strings.Join(violated, "; ")))
	case models.ActionEscalateToHuman:
		b.WriteString(fmt.Sprintf("Invoice requires human attention: %s.", strings.Join(violated, "; ")))
	}

	if n := len(ev.Discrepancies); n > 0 {
		b.WriteString(fmt.Sprintf(" %d discrepancy(ies) detected, highest severity %s.",
			n, models.HighestSeverity(ev.Discrepancies)))
	}
	return b.String()
}

func (e *Engine) logDecision(ev *Evidence, decision *models.Decision) {
	fields := logger.Fields{
		"action":     string(decision.Action),
		"confidence": decision.OverallConfidence,
		"risk":       string(decision.RiskLevel),
	}
	if ev.Invoice != nil {
		fields["invoice_number"] = ev.Invoice.InvoiceNumber
	}
	e.logger.WithFields(fields).Debug("resolution decided")
}
