package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// ErrExtractionFailed marks an extractor that was unreachable or returned
// output that could not be parsed.
var ErrExtractionFailed = errors.New("extraction: extraction failed")

// Extractor turns one message into candidate fields.
type Extractor interface {
	Extract(ctx context.Context, text string, prior qualification.Fields) (qualification.Extraction, error)
}

// defaultConfidence applies when the model omits a confidence.
const defaultConfidence = 0.7

const extractionPrompt = `Eres un asistente que analiza mensajes de WhatsApp de clientes de una tienda de muebles.
Extrae únicamente la información nueva presente en el mensaje del cliente.
Responde SOLO con JSON válido con esta forma:
{"fields": {"<campo>": {"value": "<texto>", "confidence": <0..1>}}, "is_support_request": <true|false>}
Campos permitidos: name, phone, email, product_interest, need, budget, urgency, location.
urgency solo puede ser "high", "medium" o "low".
is_support_request es true cuando el cliente reclama por un pedido, una garantía o pide soporte.
Omite los campos que no aparezcan en el mensaje.`

// LLMExtractor asks a model for a JSON extraction.
type LLMExtractor struct {
	client      LLMClient
	model       string
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
	tracer      trace.Tracer
}

// LLMExtractorOption customizes an LLMExtractor.
type LLMExtractorOption func(*LLMExtractor)

// WithModel overrides the model id sent on each request.
func WithModel(model string) LLMExtractorOption {
	return func(e *LLMExtractor) { e.model = model }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int32) LLMExtractorOption {
	return func(e *LLMExtractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

func NewLLMExtractor(client LLMClient, logger *logging.Logger, opts ...LLMExtractorOption) *LLMExtractor {
	if client == nil {
		panic("extraction: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &LLMExtractor{
		client:    client,
		maxTokens: 512,
		logger:    logger,
		tracer:    otel.Tracer("leadqual.internal.extraction"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LLMExtractor) Extract(ctx context.Context, text string, prior qualification.Fields) (qualification.Extraction, error) {
	ctx, span := e.tracer.Start(ctx, "extraction.llm",
		trace.WithAttributes(attribute.Int("prior_fields", len(prior))))
	defer span.End()

	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:       e.model,
		System:      []string{extractionPrompt, priorContext(prior)},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return qualification.Extraction{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	out, err := ParseExtraction(resp.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable output")
		e.logger.Debug("unparseable extraction output", "output", resp.Text)
		return qualification.Extraction{}, err
	}
	span.SetAttributes(
		attribute.Int("fields", len(out.Fields)),
		attribute.Bool("support_request", out.SupportRequest),
	)
	return out, nil
}

// priorContext lists what is already known so the model only reports news.
func priorContext(prior qualification.Fields) string {
	if len(prior) == 0 {
		return "Aún no se conoce ningún dato del cliente."
	}
	names := make([]string, 0, len(prior))
	for name := range prior {
		names = append(names, string(name))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Datos ya conocidos del cliente:")
	for _, name := range names {
		fmt.Fprintf(&b, "\n- %s: %s", name, prior[qualification.FieldName(name)].Value)
	}
	return b.String()
}

type llmField struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence"`
}

type llmOutput struct {
	Fields           map[string]json.RawMessage `json:"fields"`
	IsSupportRequest bool                       `json:"is_support_request"`
}

// ParseExtraction decodes model output. Code fences are stripped, unknown keys
// are ignored and a bare string value is accepted in place of {value, confidence}.
func ParseExtraction(raw string) (qualification.Extraction, error) {
	body := stripFences(raw)
	if body == "" {
		return qualification.Extraction{}, fmt.Errorf("%w: empty output", ErrExtractionFailed)
	}

	var out llmOutput
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return qualification.Extraction{}, fmt.Errorf("%w: decode: %w", ErrExtractionFailed, err)
	}

	result := qualification.Extraction{
		Fields:         make(map[qualification.FieldName]qualification.Candidate, len(out.Fields)),
		SupportRequest: out.IsSupportRequest,
	}
	for key, rawField := range out.Fields {
		name, ok := qualification.ParseFieldName(key)
		if !ok {
			continue
		}
		c, ok := decodeCandidate(rawField)
		if !ok {
			continue
		}
		if name == qualification.FieldUrgency {
			c.Value = strings.ToLower(c.Value)
		}
		if existing, dup := result.Fields[name]; dup && existing.Confidence >= c.Confidence {
			continue
		}
		result.Fields[name] = c
	}
	return result, nil
}

func decodeCandidate(raw json.RawMessage) (qualification.Candidate, bool) {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		plain = strings.TrimSpace(plain)
		return qualification.Candidate{Value: plain, Confidence: defaultConfidence}, plain != ""
	}

	var f llmField
	if err := json.Unmarshal(raw, &f); err != nil {
		return qualification.Candidate{}, false
	}
	value := strings.TrimSpace(stringify(f.Value))
	if value == "" {
		return qualification.Candidate{}, false
	}
	conf := defaultConfidence
	if f.Confidence != nil {
		conf = *f.Confidence
	}
	if conf <= 0 {
		return qualification.Candidate{}, false
	}
	if conf > 1 {
		conf = 1
	}
	return qualification.Candidate{Value: value, Confidence: conf}, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start > 0 && end > start {
		s = s[start : end+1]
	}
	return s
}
