// Package config assembles component configurations from CLI flags and
// environment settings.
package config

import (
	"context"
	"fmt"
	"strings"

	"invoice-reconciliation-service/internal/extraction"
	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/pkg/logger"

	"github.com/spf13/viper"
)

// ExtractorKind names the available extraction backends
type ExtractorKind string

const (
	ExtractorGemini ExtractorKind = "gemini"
	ExtractorFile   ExtractorKind = "file"
)

// ParseExtractorKind parses an extractor name from a flag value
func ParseExtractorKind(s string) (ExtractorKind, error) {
	switch ExtractorKind(strings.ToLower(strings.TrimSpace(s))) {
	case ExtractorGemini:
		return ExtractorGemini, nil
	case ExtractorFile:
		return ExtractorFile, nil
	default:
		return "", fmt.Errorf("unknown extractor '%s': must be gemini or file", s)
	}
}

// CreateLoggerConfig builds the logging configuration from global flags
func CreateLoggerConfig(verbose bool) *logger.Config {
	config := logger.DefaultConfig()
	if verbose {
		config.Level = logger.DebugLevel
	}
	if file := viper.GetString("log-file"); file != "" {
		config.File = file
	}
	if format := viper.GetString("log-format"); format != "" {
		config.Format = logger.Format(format)
	}
	return config
}

// CreatePipelineConfig builds the stage configurations. Strict mode
// tightens the matching thresholds for high-value supplier runs;
// min-match-score and price-tolerance override individual thresholds.
func CreatePipelineConfig(strict bool) *reconciler.PipelineConfig {
	config := reconciler.DefaultPipelineConfig()
	if strict {
		config.Matching = matcher.StrictMatchingConfig()
	}
	if max := viper.GetInt("max-alternatives"); max > 0 {
		config.Matching.MaxAlternatives = max
	}
	if score := viper.GetFloat64("min-match-score"); score > 0 {
		config.Matching.Tier3MinScore = score
	}
	if tolerance := viper.GetFloat64("price-tolerance"); tolerance > 0 {
		config.Detection.PriceMinorPct = tolerance
	}
	return config
}

// CreateOrchestratorConfig builds the batch configuration
func CreateOrchestratorConfig(maxConcurrency int, failFast bool) *reconciler.OrchestratorConfig {
	config := reconciler.DefaultOrchestratorConfig()
	if maxConcurrency > 0 {
		config.MaxConcurrency = maxConcurrency
	}
	config.ContinueOnError = !failFast
	return config
}

// CreateReportConfig builds the report configuration for the given format
func CreateReportConfig(format string, includeTraces bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(format)
	config.IncludeStageTraces = includeTraces
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateExtractor builds the extraction backend. The Gemini backend
// reads its API key from the RECONCILER_GEMINI_API_KEY environment
// variable or the gemini-api-key config setting.
func CreateExtractor(ctx context.Context, kind ExtractorKind, model string) (extraction.Extractor, error) {
	switch kind {
	case ExtractorFile:
		return extraction.NewFileExtractor(), nil
	case ExtractorGemini:
		return extraction.NewGeminiExtractor(ctx, &extraction.GeminiConfig{
			APIKey: viper.GetString("gemini-api-key"),
			Model:  model,
		})
	default:
		return nil, fmt.Errorf("unknown extractor kind: %s", kind)
	}
}
