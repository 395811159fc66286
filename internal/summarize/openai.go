package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const summaryInstructions = `You summarize one section of an Irish parliamentary debate (Dáil or Seanad).
Report what the section was about, the positions the main speakers took, and whether the
chamber reached consensus. Be neutral and factual. Name speakers as they appear in the
transcript. Do not speculate beyond the text.`

type sectionSummaryResponse struct {
	Summary   string   `json:"summary" jsonschema:"description=Two to five sentence neutral summary of the section"`
	KeyPoints []string `json:"key_points" jsonschema:"description=The main arguments made, one per item"`
	Consensus string   `json:"consensus" jsonschema:"enum=consensus,enum=divided,enum=contested,enum=procedural"`
}

func (r sectionSummaryResponse) text() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(r.Summary))
	if c := strings.TrimSpace(r.Consensus); c != "" {
		sb.WriteString("\n\nConsensus: ")
		sb.WriteString(c)
	}
	for _, p := range r.KeyPoints {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		sb.WriteString("\n- ")
		sb.WriteString(p)
	}
	return strings.TrimSpace(sb.String())
}

var sectionSummarySchema = generateSchema[sectionSummaryResponse]()

// OpenAISummarizer calls the Responses API with a strict JSON schema.
type OpenAISummarizer struct {
	client      *openai.Client
	model       string
	maxRetries  int
	maxOutput   int64
	maxPromptCh int
}

func NewOpenAISummarizer(apiKey, model string) (*OpenAISummarizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai api key is empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai model is empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAISummarizer{
		client:      &client,
		model:       model,
		maxRetries:  3,
		maxOutput:   1500,
		maxPromptCh: 60_000,
	}, nil
}

func (s *OpenAISummarizer) Model() string {
	return s.model
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, section SectionText) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("openai summarizer: client is nil")
	}

	params := responses.ResponseNewParams{
		Model:           s.model,
		MaxOutputTokens: openai.Int(s.maxOutput),
		Instructions:    openai.String(summaryInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(BuildPrompt(section, s.maxPromptCh), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        "SectionSummary",
					Schema:      sectionSummarySchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Debate section summary JSON"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := s.callWithRetry(ctx, params)
	if err != nil {
		return "", err
	}
	var out sectionSummaryResponse
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return "", fmt.Errorf("unmarshal summary: %w", err)
	}
	text := out.text()
	if text == "" {
		return "", errors.New("model returned an empty summary")
	}
	return text, nil
}

func (s *OpenAISummarizer) callWithRetry(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	rateLimitWaits := []time.Duration{20 * time.Second, 60 * time.Second, 120 * time.Second}
	serverErrorWaits := []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

	attempts := s.maxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := s.client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		if attempt == attempts-1 || ctx.Err() != nil {
			return nil, err
		}
		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = rateLimitWaits[min(attempt, len(rateLimitWaits)-1)]
		case isServerError(err):
			wait = serverErrorWaits[min(attempt, len(serverErrorWaits)-1)]
		default:
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", attempts)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "server_error")
}

func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	// Models occasionally wrap the object in prose or a code fence.
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	strictObjects(m)
	return m
}

// strictObjects makes every object closed with all properties required, which
// strict structured output demands.
func strictObjects(schema map[string]interface{}) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				strictObjects(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		strictObjects(items)
	}
}
