//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-compatible chat model implementation.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
	"trpc.group/trpc-go/trpc-toolmesh-go/model"
	"trpc.group/trpc-go/trpc-toolmesh-go/tool"
)

// Verify that Model implements the model.Model interface.
var _ model.Model = (*Model)(nil)

// Model is a chat model backed by an OpenAI-compatible API.
type Model struct {
	name           string
	client         openai.Client
	apiKey         string
	baseURL        string
	requestOptions []option.RequestOption
}

// Option configures the Model.
type Option func(*Model)

// WithAPIKey sets the API key.
// If not provided, the OPENAI_API_KEY environment variable is used.
func WithAPIKey(apiKey string) Option {
	return func(m *Model) {
		m.apiKey = apiKey
	}
}

// WithBaseURL sets the base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) Option {
	return func(m *Model) {
		m.baseURL = baseURL
	}
}

// WithRequestOptions sets additional options for client requests.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(m *Model) {
		m.requestOptions = append(m.requestOptions, opts...)
	}
}

// New creates a chat model for the given model name.
func New(name string, opts ...Option) *Model {
	m := &Model{name: name}
	for _, opt := range opts {
		opt(m)
	}
	var clientOpts []option.RequestOption
	if m.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(m.apiKey))
	}
	if m.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(m.baseURL))
	}
	m.client = openai.NewClient(clientOpts...)
	return m
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements model.Model.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (*model.Response, error) {
	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
		Tools:    convertTools(request.Tools),
	}
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest, m.requestOptions...)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	return convertResponse(chatCompletion), nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case model.RoleAssistant:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCalls: convertToolCalls(msg.ToolCalls),
				},
			}
		case model.RoleTool:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCallID: msg.ToolID,
				},
			}
		default:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		}
	}
	return result
}

func convertToolCalls(toolCalls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var result []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolCalls {
		result = append(result, openai.ChatCompletionMessageToolCallParam{
			ID: toolCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Function.Name,
				Arguments: string(toolCall.Function.Arguments),
			},
		})
	}
	return result
}

// convertTools binds tool declarations in sorted name order so request
// shape does not vary between identical calls.
func convertTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []openai.ChatCompletionToolParam
	for _, name := range names {
		declaration := tools[name].Declaration()
		schema := declaration.InputSchema
		if schema == nil {
			// Schema-less tools still need an object schema on the wire.
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		schemaBytes, err := json.Marshal(schema)
		if err != nil {
			log.Errorf("failed to marshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("failed to unmarshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

func convertResponse(chatCompletion *openai.ChatCompletion) *model.Response {
	response := &model.Response{
		ID:    chatCompletion.ID,
		Model: chatCompletion.Model,
	}
	response.Choices = make([]model.Choice, len(chatCompletion.Choices))
	for i, choice := range chatCompletion.Choices {
		message := model.Message{
			Role:    model.RoleAssistant,
			Content: choice.Message.Content,
		}
		message.ToolCalls = make([]model.ToolCall, len(choice.Message.ToolCalls))
		for j, toolCall := range choice.Message.ToolCalls {
			id := toolCall.ID
			if id == "" {
				// Some backends omit call ids.
				id = fmt.Sprintf("auto_call_%d", j)
			}
			message.ToolCalls[j] = model.ToolCall{
				ID:   id,
				Type: string(toolCall.Type),
				Function: model.FunctionCall{
					Name:      toolCall.Function.Name,
					Arguments: []byte(toolCall.Function.Arguments),
				},
			}
		}
		response.Choices[i] = model.Choice{
			Index:        int(choice.Index),
			Message:      message,
			FinishReason: string(choice.FinishReason),
		}
	}
	return response
}
