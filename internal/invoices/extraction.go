package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrExtraction indicates the LLM call failed or returned an unusable shape.
var ErrExtraction = errors.New("invoices: extraction failed")

// ChatCompleter is the slice of the OpenAI client the extraction uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ExtractionClient turns raw invoice text into a structured Invoice
// candidate with a single chat-completion call. The model output is
// untrusted; every consumed field is normalized defensively.
type ExtractionClient struct {
	llm    ChatCompleter
	model  string
	logger *slog.Logger
}

// NewExtractionClient constructs ExtractionClient.
func NewExtractionClient(llm ChatCompleter, model string, logger *slog.Logger) *ExtractionClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &ExtractionClient{llm: llm, model: model, logger: logger}
}

const extractionSystemPrompt = `You extract structured data from invoice text.
Return ONLY a valid JSON object, no prose and no code fences, with exactly these fields:
{
  "invoice_number": "string",
  "date": "YYYY-MM-DD",
  "customer_details": {"name": "string", "email": "string", "phone": "string", "shipping_address": "string"},
  "amount": 0.0,
  "tax": 0.0,
  "total": 0.0,
  "number_of_units": 0,
  "confidence": "high|medium|low",
  "confidence_score": 0,
  "line_items": [{"sku": "string", "name": "string", "quantity": 0, "unit_price": 0.0, "total": 0.0}],
  "notes": "string"
}
confidence_score is an integer 0-100 expressing how certain you are about the extraction overall.
Use null for values you cannot find. Quantities are positive integers. Do not invent line items.`

// Extract performs one best-effort extraction over the given text.
func (c *ExtractionClient) Extract(ctx context.Context, text string) (Invoice, error) {
	resp, err := c.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Extract the invoice data from this text:\n\n" + text},
		},
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if len(resp.Choices) == 0 {
		return Invoice{}, fmt.Errorf("%w: empty response", ErrExtraction)
	}

	content := stripCodeFences(resp.Choices[0].Message.Content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		if c.logger != nil {
			c.logger.Warn("unparseable extraction response", slog.Any("error", err))
		}
		return Invoice{}, fmt.Errorf("%w: parse response: %v", ErrExtraction, err)
	}

	return normalizeExtraction(raw), nil
}

// normalizeExtraction maps untyped model output onto an Invoice,
// defaulting every field whose shape does not match the schema.
func normalizeExtraction(raw map[string]any) Invoice {
	inv := Invoice{
		Number:          getString(raw, "invoice_number"),
		Date:            getString(raw, "date"),
		Amount:          getFloat(raw, "amount"),
		Tax:             getFloat(raw, "tax"),
		Total:           getFloat(raw, "total"),
		NumberOfUnits:   getInt(raw, "number_of_units"),
		ConfidenceScore: clampScore(getInt(raw, "confidence_score")),
		Notes:           getString(raw, "notes"),
		PaymentMethod:   "Bank Transfer",
		PaymentStatus:   "Pending",
	}

	switch strings.ToLower(getString(raw, "confidence")) {
	case string(ConfidenceHigh):
		inv.Confidence = ConfidenceHigh
	case string(ConfidenceMedium):
		inv.Confidence = ConfidenceMedium
	default:
		inv.Confidence = ConfidenceLow
	}

	if details, ok := raw["customer_details"].(map[string]any); ok {
		inv.Customer = CustomerDetails{
			Name:            getString(details, "name"),
			Email:           getString(details, "email"),
			Phone:           getString(details, "phone"),
			ShippingAddress: getString(details, "shipping_address"),
		}
	}

	// A non-array line_items becomes an empty list rather than a failure.
	if lines, ok := raw["line_items"].([]any); ok {
		for _, entry := range lines {
			line, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			inv.LineItems = append(inv.LineItems, LineItem{
				SKU:       getString(line, "sku"),
				Name:      getString(line, "name"),
				Quantity:  getInt(line, "quantity"),
				UnitPrice: getFloat(line, "unit_price"),
				Total:     getFloat(line, "total"),
			})
		}
	}

	return inv
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func clampScore(score int64) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

func getString(m map[string]any, key string) string {
	if value, ok := m[key].(string); ok {
		return value
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return 0
}

func getInt(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(math.Round(v))
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return 0
}
