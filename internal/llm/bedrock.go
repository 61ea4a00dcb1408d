package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient implements Client using the Bedrock Converse API. Tool
// requests surface through Converse's native tool-use protocol.
type BedrockClient struct {
	api bedrockConverseAPI
}

func NewBedrockClient(api bedrockConverseAPI) *BedrockClient {
	if api == nil {
		panic("llm: bedrock converse client cannot be nil")
	}
	return &BedrockClient{api: api}
}

var _ Client = (*BedrockClient)(nil)

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, errors.New("llm: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case ChatRoleSystem:
			if content := strings.TrimSpace(msg.Content); content != "" {
				systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: content})
			}
		case ChatRoleUser:
			if content := strings.TrimSpace(msg.Content); content != "" {
				messages = append(messages, brtypes.Message{
					Role: brtypes.ConversationRoleUser,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: content},
					},
				})
			}
		case ChatRoleAssistant:
			blocks := make([]brtypes.ContentBlock, 0, 1+len(msg.ToolCalls))
			if content := strings.TrimSpace(msg.Content); content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: content})
			}
			for _, call := range msg.ToolCalls {
				var input any
				if len(call.Input) > 0 {
					if err := json.Unmarshal(call.Input, &input); err != nil {
						return Response{}, fmt.Errorf("llm: tool call input: %w", err)
					}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(call.ID),
						Name:      aws.String(call.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: blocks,
			})
		case ChatRoleTool:
			blocks := make([]brtypes.ContentBlock, 0, len(msg.ToolResults))
			for _, res := range msg.ToolResults {
				status := brtypes.ToolResultStatusSuccess
				if res.IsError {
					status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
					Value: brtypes.ToolResultBlock{
						ToolUseId: aws.String(res.ToolCallID),
						Status:    status,
						Content: []brtypes.ToolResultContentBlock{
							&brtypes.ToolResultContentBlockMemberText{Value: res.Content},
						},
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			// Tool results ride on a user-role message per the Converse protocol.
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: blocks,
			})
		default:
			return Response{}, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Allow callers to omit temperature by passing a negative value.
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
	}
	if len(req.Tools) > 0 {
		toolConfig := &brtypes.ToolConfiguration{}
		for _, spec := range req.Tools {
			toolConfig.Tools = append(toolConfig.Tools, &brtypes.ToolMemberToolSpec{
				Value: brtypes.ToolSpecification{
					Name:        aws.String(spec.Name),
					Description: aws.String(spec.Description),
					InputSchema: &brtypes.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(spec.InputSchema),
					},
				},
			})
		}
		input.ToolConfig = toolConfig
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return Response{}, err
	}
	return bedrockDecodeOutput(out)
}

func bedrockDecodeOutput(out *bedrockruntime.ConverseOutput) (Response, error) {
	if out == nil {
		return Response{}, errors.New("llm: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, errors.New("llm: bedrock response did not include a message output")
	}

	var (
		builder strings.Builder
		calls   []ToolCall
	)
	for _, block := range msgOut.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			builder.WriteString(v.Value)
		case *brtypes.ContentBlockMemberToolUse:
			raw, err := marshalDocument(v.Value.Input)
			if err != nil {
				return Response{}, fmt.Errorf("llm: tool use input: %w", err)
			}
			call := ToolCall{
				Name:  aws.ToString(v.Value.Name),
				Input: raw,
			}
			if v.Value.ToolUseId != nil {
				call.ID = *v.Value.ToolUseId
			} else {
				call.ID = uuid.NewString()
			}
			calls = append(calls, call)
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" && len(calls) == 0 {
		return Response{}, errors.New("llm: bedrock response contained no text or tool content")
	}

	resp := Response{
		Text:      text,
		ToolCalls: calls,
	}
	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

type smithyDocument interface {
	UnmarshalSmithyDocument(v any) error
}

func marshalDocument(doc smithyDocument) (json.RawMessage, error) {
	if doc == nil {
		return json.RawMessage("{}"), nil
	}
	var decoded any
	if err := doc.UnmarshalSmithyDocument(&decoded); err != nil {
		return nil, err
	}
	return json.Marshal(decoded)
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
