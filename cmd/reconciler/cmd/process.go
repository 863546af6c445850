package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"invoice-reconciliation-service/cmd/reconciler/config"
	"invoice-reconciliation-service/internal/poindex"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/internal/review"
	"invoice-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the process command
var (
	invoiceFile    string
	invoiceDir     string
	poDatabase     string
	extractorName  string
	geminiModel    string
	outputFormat   string
	outputFile     string
	maxConcurrency int
	strictMatching bool
	minMatchScore  float64
	priceTolerance float64
	failFast       bool
	includeTraces  bool
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Reconcile invoices against the purchase order database",
	Long: `Process extracts invoice documents, matches each one against the
purchase order database, detects discrepancies, and recommends an action.

This command requires:
- An invoice document (--invoice) or a directory of documents (--invoice-dir)
- A purchase order database file (JSON format)

Examples:
  # Single invoice with the Gemini extraction backend
  reconciler process --invoice invoice.pdf --po-database orders.json

  # A directory of pre-extracted invoice records
  reconciler process --invoice-dir ./extracted --po-database orders.json --extractor file

  # JSON report to a file, eight documents in flight
  reconciler process --invoice-dir ./invoices --po-database orders.json \
    --output-format json --output-file report.json --max-concurrency 8

  # Tighter matching thresholds for a high-value supplier run
  reconciler process --invoice invoice.pdf --po-database orders.json --strict`,

	PreRunE: validateProcessFlags,
	RunE:    runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	// Input flags
	processCmd.Flags().StringVarP(&invoiceFile, "invoice", "i", "", "path to a single invoice document")
	processCmd.Flags().StringVar(&invoiceDir, "invoice-dir", "", "directory of invoice documents to process as a batch")
	processCmd.Flags().StringVarP(&poDatabase, "po-database", "p", "", "path to the purchase order database JSON file (required)")

	// Extraction flags
	processCmd.Flags().StringVar(&extractorName, "extractor", "gemini", "extraction backend: gemini, file")
	processCmd.Flags().StringVar(&geminiModel, "gemini-model", "", "override the Gemini model name")

	// Output flags
	processCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	processCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	processCmd.Flags().BoolVar(&includeTraces, "include-traces", false, "include per-stage timing traces in the report")

	// Batch flags
	processCmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 4, "maximum invoices processed in parallel")
	processCmd.Flags().BoolVar(&failFast, "fail-fast", false, "abort the batch on the first document failure")

	// Matching and detection flags
	processCmd.Flags().BoolVar(&strictMatching, "strict", false, "use tighter matching thresholds")
	processCmd.Flags().Float64Var(&minMatchScore, "min-match-score", 0, "minimum fuzzy match score (0 uses the default)")
	processCmd.Flags().Float64Var(&priceTolerance, "price-tolerance", 0, "price variance percentage below which no discrepancy is raised (0 uses the default)")

	processCmd.MarkFlagRequired("po-database")

	// Bind flags to viper
	viper.BindPFlag("invoice", processCmd.Flags().Lookup("invoice"))
	viper.BindPFlag("invoice-dir", processCmd.Flags().Lookup("invoice-dir"))
	viper.BindPFlag("po-database", processCmd.Flags().Lookup("po-database"))
	viper.BindPFlag("extractor", processCmd.Flags().Lookup("extractor"))
	viper.BindPFlag("gemini-model", processCmd.Flags().Lookup("gemini-model"))
	viper.BindPFlag("output-format", processCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", processCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("include-traces", processCmd.Flags().Lookup("include-traces"))
	viper.BindPFlag("max-concurrency", processCmd.Flags().Lookup("max-concurrency"))
	viper.BindPFlag("fail-fast", processCmd.Flags().Lookup("fail-fast"))
	viper.BindPFlag("strict", processCmd.Flags().Lookup("strict"))
	viper.BindPFlag("min-match-score", processCmd.Flags().Lookup("min-match-score"))
	viper.BindPFlag("price-tolerance", processCmd.Flags().Lookup("price-tolerance"))
}

func validateProcessFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	invoiceFile = viper.GetString("invoice")
	invoiceDir = viper.GetString("invoice-dir")
	poDatabase = viper.GetString("po-database")
	extractorName = viper.GetString("extractor")
	geminiModel = viper.GetString("gemini-model")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	includeTraces = viper.GetBool("include-traces")
	maxConcurrency = viper.GetInt("max-concurrency")
	failFast = viper.GetBool("fail-fast")
	strictMatching = viper.GetBool("strict")
	minMatchScore = viper.GetFloat64("min-match-score")
	priceTolerance = viper.GetFloat64("price-tolerance")

	if minMatchScore < 0 || minMatchScore > 1 {
		return fmt.Errorf("min-match-score must be between 0 and 1")
	}
	if priceTolerance < 0 || priceTolerance > 100 {
		return fmt.Errorf("price-tolerance must be a percentage between 0 and 100")
	}

	if invoiceFile == "" && invoiceDir == "" {
		return fmt.Errorf("either --invoice or --invoice-dir is required")
	}
	if invoiceFile != "" && invoiceDir != "" {
		return fmt.Errorf("--invoice and --invoice-dir are mutually exclusive")
	}

	if poDatabase == "" {
		return fmt.Errorf("po-database is required")
	}
	if err := validateFileExists(poDatabase, "purchase order database"); err != nil {
		return err
	}

	if invoiceFile != "" {
		if err := validateFileExists(invoiceFile, "invoice document"); err != nil {
			return err
		}
	}
	if invoiceDir != "" {
		info, err := os.Stat(invoiceDir)
		if os.IsNotExist(err) {
			return fmt.Errorf("invoice directory does not exist: %s", invoiceDir)
		}
		if err != nil {
			return fmt.Errorf("error accessing invoice directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("invoice-dir is not a directory: %s", invoiceDir)
		}
	}

	if _, err := config.ParseExtractorKind(extractorName); err != nil {
		return err
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if maxConcurrency < 1 {
		return fmt.Errorf("max-concurrency must be at least 1")
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

// runProcess translates any pipeline failure into an exit code in one
// place, after the deferred cleanups in executeProcess have run.
func runProcess(cmd *cobra.Command, args []string) error {
	if err := executeProcess(context.Background()); err != nil {
		os.Exit(NewCLIErrorHandler().HandleError(err))
	}
	return nil
}

func executeProcess(ctx context.Context) error {
	// Configure logging before anything else logs
	log, err := logger.NewLogger(config.CreateLoggerConfig(viper.GetBool("verbose")))
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	logger.SetGlobalLogger(log)

	index, err := poindex.LoadFile(poDatabase)
	if err != nil {
		return err
	}

	pipeline, err := reconciler.NewPipeline(index, config.CreatePipelineConfig(strictMatching))
	if err != nil {
		return err
	}

	kind, err := config.ParseExtractorKind(extractorName)
	if err != nil {
		return err
	}
	extractor, err := config.CreateExtractor(ctx, kind, geminiModel)
	if err != nil {
		return err
	}
	if closer, ok := extractor.(io.Closer); ok {
		defer closer.Close()
	}

	queue := review.NewQueue()
	orchestrator, err := reconciler.NewOrchestrator(extractor, pipeline, queue,
		config.CreateOrchestratorConfig(maxConcurrency, failFast))
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat, includeTraces)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	writer, cleanup, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer cleanup()

	if invoiceFile != "" {
		report, err := orchestrator.ProcessDocument(ctx, invoiceFile)
		if err != nil {
			return err
		}
		if err := generator.WriteReport(report, writer); err != nil {
			return err
		}
		printReviewSummary(queue)
		return nil
	}

	paths, err := collectInvoicePaths(invoiceDir, extractorKindExtensions(kind))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no invoice documents found in %s", invoiceDir)
	}

	result, err := orchestrator.ProcessBatch(ctx, paths)
	if err != nil {
		return err
	}
	if err := generator.WriteBatch(result, writer); err != nil {
		return err
	}
	printReviewSummary(queue)
	if result.Errors != nil && result.Summary.Failed == result.Summary.Total {
		return result.Errors
	}
	return nil
}

// collectInvoicePaths lists processable documents in the directory,
// sorted for deterministic batch order.
func collectInvoicePaths(dir string, extensions map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func extractorKindExtensions(kind config.ExtractorKind) map[string]bool {
	if kind == config.ExtractorFile {
		return map[string]bool{".json": true}
	}
	return map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true}
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func printReviewSummary(queue *review.Queue) {
	if queue.Len() == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\n%d invoice(s) referred for review:\n", queue.Len())
	for _, req := range queue.Pending() {
		fmt.Fprintf(os.Stderr, "  [%s] %s: %s\n", req.Action, req.InvoiceNumber, req.Reasoning)
	}
}
