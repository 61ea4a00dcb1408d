package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		modelID: modelID,
	}, nil
}

var _ Client = (*GeminiClient)(nil)

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := c.client.GenerativeModel(c.modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}

	if len(req.System) > 0 {
		systemText := strings.Join(req.System, "\n\n")
		if strings.TrimSpace(systemText) != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
		}
	}

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, spec := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schemaFromMap(spec.InputSchema),
			})
		}
		model.Tools = []*genai.Tool{tool}
	}

	if len(req.Messages) == 0 {
		return Response{}, errors.New("llm: gemini requires at least one message")
	}

	cs := model.StartChat()

	// All messages except the last go into the chat history.
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		content, err := geminiContent(msg)
		if err != nil {
			return Response{}, err
		}
		if content != nil {
			cs.History = append(cs.History, content)
		}
	}

	lastParts, err := geminiParts(req.Messages[len(req.Messages)-1])
	if err != nil {
		return Response{}, err
	}
	if len(lastParts) == 0 {
		return Response{}, errors.New("llm: gemini final message is empty")
	}

	resp, err := cs.SendMessage(ctx, lastParts...)
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return Response{}, errors.New("llm: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Response{}, errors.New("llm: gemini returned empty content")
	}

	var (
		builder strings.Builder
		calls   []ToolCall
	)
	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			builder.WriteString(string(v))
		case genai.FunctionCall:
			raw, err := json.Marshal(v.Args)
			if err != nil {
				return Response{}, fmt.Errorf("llm: gemini function args: %w", err)
			}
			calls = append(calls, ToolCall{
				ID:    uuid.NewString(),
				Name:  v.Name,
				Input: raw,
			})
		}
	}

	result := Response{
		Text:       strings.TrimSpace(builder.String()),
		ToolCalls:  calls,
		StopReason: string(candidate.FinishReason),
	}
	if len(calls) > 0 {
		result.StopReason = StopReasonToolUse
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiContent(msg ChatMessage) (*genai.Content, error) {
	parts, err := geminiParts(msg)
	if err != nil || len(parts) == 0 {
		return nil, err
	}
	role := "user"
	if msg.Role == ChatRoleAssistant {
		role = "model"
	}
	return &genai.Content{Role: role, Parts: parts}, nil
}

func geminiParts(msg ChatMessage) ([]genai.Part, error) {
	switch msg.Role {
	case ChatRoleSystem:
		// System prompts are handled via SystemInstruction.
		return nil, nil
	case ChatRoleUser, ChatRoleAssistant:
		var parts []genai.Part
		if content := strings.TrimSpace(msg.Content); content != "" {
			parts = append(parts, genai.Text(content))
		}
		for _, call := range msg.ToolCalls {
			var args map[string]any
			if len(call.Input) > 0 {
				if err := json.Unmarshal(call.Input, &args); err != nil {
					return nil, fmt.Errorf("llm: gemini tool call input: %w", err)
				}
			}
			parts = append(parts, genai.FunctionCall{Name: call.Name, Args: args})
		}
		return parts, nil
	case ChatRoleTool:
		var parts []genai.Part
		for _, res := range msg.ToolResults {
			var payload map[string]any
			if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
				payload = map[string]any{"output": res.Content}
			}
			parts = append(parts, genai.FunctionResponse{Name: res.Name, Response: payload})
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("llm: unsupported role %q", msg.Role)
	}
}

// schemaFromMap converts a JSON-schema style map into a genai.Schema. Only
// the subset the tool specs use (object/string/integer/number/boolean/array,
// enum, required) is mapped.
func schemaFromMap(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		switch t {
		case "object":
			schema.Type = genai.TypeObject
		case "string":
			schema.Type = genai.TypeString
		case "integer":
			schema.Type = genai.TypeInteger
		case "number":
			schema.Type = genai.TypeNumber
		case "boolean":
			schema.Type = genai.TypeBoolean
		case "array":
			schema.Type = genai.TypeArray
		}
	}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	if req, ok := m["required"].([]string); ok {
		schema.Required = req
	} else if reqAny, ok := m["required"].([]any); ok {
		for _, r := range reqAny {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if enum, ok := m["enum"].([]string); ok {
		schema.Enum = enum
	}
	return schema
}
