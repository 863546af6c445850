package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

const defaultGeminiModel = "gemini-1.5-flash"

const extractionPrompt = `Extract the invoice from this document into the JSON schema.
Read every line item. Copy amounts exactly as printed, without currency symbols.
If a field is absent or illegible, omit it rather than guessing.
For each top-level field you do extract, record your confidence between 0 and 1
in the field_confidence object.`

// GeminiConfig configures the Gemini-backed extractor
type GeminiConfig struct {
	APIKey string `json:"-"`
	Model  string `json:"model"`
}

// GeminiExtractor extracts invoices by sending the document image or PDF
// to the Gemini API with a structured response schema.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	logger logger.Logger
}

// NewGeminiExtractor creates a Gemini-backed extractor. Missing API
// credentials are a configuration problem reported immediately, not at
// first use.
func NewGeminiExtractor(ctx context.Context, config *GeminiConfig) (*GeminiExtractor, error) {
	if config == nil || strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.ExtractionError(errors.CodeExtractionUnavailable, "",
			fmt.Errorf("gemini api key is not set"))
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, errors.ExtractionError(errors.CodeExtractionUnavailable, "", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiExtractor{
		client: client,
		model:  model,
		logger: logger.GetGlobalLogger().WithComponent("extraction"),
	}, nil
}

// Close releases the underlying API client
func (e *GeminiExtractor) Close() error {
	return e.client.Close()
}

// Extract sends the document to Gemini and parses the structured
// response. Transport and credential failures are errors; an unusable
// response from a readable document comes back as a zero-confidence
// Result so the pipeline can escalate instead of aborting the batch.
func (e *GeminiExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}

	model := e.client.GenerativeModel(e.model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = invoiceSchema()

	log := e.logger.WithField("path", path)
	log.Debug("sending document for extraction")

	resp, err := model.GenerateContent(ctx,
		genai.Text(extractionPrompt),
		genai.Blob{
			MIMEType: mimeTypeFor(path),
			Data:     data,
		},
	)
	if err != nil {
		return nil, errors.ExtractionError(errors.CodeExtractionUnavailable, path, err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, errors.ExtractionError(errors.CodeExtractionResponse, path,
			fmt.Errorf("empty response from model"))
	}

	var wire geminiInvoice
	if err := json.Unmarshal([]byte(repairJSON(text)), &wire); err != nil {
		log.WithError(err).Warn("model response could not be parsed, grading as unreadable")
		return &Result{
			Invoice:    &models.ExtractedInvoice{InvoiceNumber: filepath.Base(path)},
			Confidence: 0.0,
			Quality:    QualityLow,
			Reasoning:  "document was processed but the extracted structure was unusable",
		}, nil
	}

	inv := wire.toInvoice()
	if err := inv.Validate(); err != nil {
		log.WithError(err).Warn("extracted record failed validation, grading as unreadable")
		return &Result{
			Invoice:    &models.ExtractedInvoice{InvoiceNumber: filepath.Base(path)},
			Confidence: 0.0,
			Quality:    QualityLow,
			Reasoning:  fmt.Sprintf("extracted structure was invalid: %v", err),
		}, nil
	}

	confidence := ScoreExtraction(inv)
	log.WithFields(logger.Fields{
		"invoice":    inv.InvoiceNumber,
		"confidence": confidence,
	}).Info("document extracted")

	return &Result{
		Invoice:    inv,
		Confidence: confidence,
		Quality:    GradeQuality(confidence),
		Reasoning:  fmt.Sprintf("extracted by %s with %d of %d key fields present", e.model, presentCount(inv), len(scoredFields)),
	}, nil
}

// geminiInvoice mirrors the response schema with amounts as raw strings.
// The prompt asks for plain decimals, but the model still emits currency
// symbols and thousand separators often enough that amounts go through
// the tolerant parser instead of strict decimal decoding.
type geminiInvoice struct {
	InvoiceNumber   string             `json:"invoice_number"`
	InvoiceDate     string             `json:"invoice_date"`
	SupplierName    string             `json:"supplier_name"`
	POReference     string             `json:"po_reference"`
	LineItems       []geminiLineItem   `json:"line_items"`
	Subtotal        string             `json:"subtotal"`
	TaxRate         string             `json:"tax_rate"`
	TaxAmount       string             `json:"tax_amount"`
	Total           string             `json:"total"`
	Currency        string             `json:"currency"`
	FieldConfidence map[string]float64 `json:"field_confidence"`
}

type geminiLineItem struct {
	ItemCode    string `json:"item_code"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

func (g *geminiInvoice) toInvoice() *models.ExtractedInvoice {
	inv := &models.ExtractedInvoice{
		InvoiceNumber:   g.InvoiceNumber,
		InvoiceDate:     g.InvoiceDate,
		SupplierName:    g.SupplierName,
		POReference:     g.POReference,
		Subtotal:        parseAmount(g.Subtotal),
		TaxRate:         parseAmount(g.TaxRate),
		TaxAmount:       parseAmount(g.TaxAmount),
		Total:           parseAmount(g.Total),
		Currency:        g.Currency,
		FieldConfidence: g.FieldConfidence,
	}
	for _, li := range g.LineItems {
		inv.LineItems = append(inv.LineItems, models.LineItem{
			ItemCode:    li.ItemCode,
			Description: li.Description,
			Quantity:    parseAmount(li.Quantity),
			Unit:        li.Unit,
			UnitPrice:   parseAmount(li.UnitPrice),
			LineTotal:   parseAmount(li.LineTotal),
		})
	}
	return inv
}

// parseAmount tolerates currency symbols and separators. An absent or
// unparseable amount degrades to zero and lowers the arithmetic
// consistency score instead of failing the document.
func parseAmount(s string) decimal.Decimal {
	d, err := models.ParseDecimalFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func presentCount(inv *models.ExtractedInvoice) int {
	n := 0
	for _, field := range scoredFields {
		if fieldPresent(inv, field) {
			n++
		}
	}
	return n
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// repairJSON strips markdown fences and escapes literal control
// characters inside string values, both of which the model occasionally
// emits despite the JSON response mode.
func repairJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var b strings.Builder
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\' && inString:
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r == '\n':
			b.WriteString(`\n`)
		case inString && r == '\t':
			b.WriteString(`\t`)
		case inString && r == '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// invoiceSchema is the structured response schema sent with every
// extraction request.
func invoiceSchema() *genai.Schema {
	lineItem := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"item_code":   {Type: genai.TypeString, Description: "Supplier item or SKU code"},
			"description": {Type: genai.TypeString, Description: "Billed item description"},
			"quantity":    {Type: genai.TypeString, Description: "Billed quantity as a decimal string"},
			"unit":        {Type: genai.TypeString, Description: "Unit of measure"},
			"unit_price":  {Type: genai.TypeString, Description: "Price per unit as a decimal string"},
			"line_total":  {Type: genai.TypeString, Description: "Extended line total as a decimal string"},
		},
		Required: []string{"description", "quantity", "unit_price", "line_total"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"invoice_number": {Type: genai.TypeString, Description: "Invoice number as printed"},
			"invoice_date":   {Type: genai.TypeString, Description: "Invoice date, ISO 8601 where possible"},
			"supplier_name":  {Type: genai.TypeString, Description: "Issuing supplier name"},
			"po_reference":   {Type: genai.TypeString, Description: "Referenced purchase order number, if printed"},
			"line_items":     {Type: genai.TypeArray, Items: lineItem},
			"subtotal":       {Type: genai.TypeString, Description: "Pre-tax subtotal as a decimal string"},
			"tax_rate":       {Type: genai.TypeString, Description: "Tax rate as a decimal fraction"},
			"tax_amount":     {Type: genai.TypeString, Description: "Tax amount as a decimal string"},
			"total":          {Type: genai.TypeString, Description: "Invoice grand total as a decimal string"},
			"currency":       {Type: genai.TypeString, Description: "ISO currency code"},
			"field_confidence": {
				Type:        genai.TypeObject,
				Description: "Extraction confidence per top-level field, 0 to 1",
				Properties: map[string]*genai.Schema{
					"invoice_number": {Type: genai.TypeNumber},
					"invoice_date":   {Type: genai.TypeNumber},
					"supplier_name":  {Type: genai.TypeNumber},
					"po_reference":   {Type: genai.TypeNumber},
					"line_items":     {Type: genai.TypeNumber},
					"total":          {Type: genai.TypeNumber},
				},
			},
		},
		Required: []string{"invoice_number", "line_items", "total"},
	}
}
