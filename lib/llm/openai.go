// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	// BaseURL is the API root; "/chat/completions" and "/models" are
	// appended to it.
	BaseURL string

	// Tokens supplies the bearer token for each request.
	Tokens TokenSource

	// HTTPClient is used for all requests. If nil, http.DefaultClient.
	HTTPClient *http.Client

	// UserAgent is sent when non-empty.
	UserAgent string
}

// OpenAI implements [Provider] and [ModelLister] for any service that
// speaks the OpenAI chat completions wire format.
type OpenAI struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	userAgent  string
}

var (
	_ Provider    = (*OpenAI)(nil)
	_ ModelLister = (*OpenAI)(nil)
)

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(config OpenAIConfig) (*OpenAI, error) {
	if config.BaseURL == "" {
		return nil, errors.New("llm: BaseURL is required")
	}
	if config.Tokens == nil {
		return nil, errors.New("llm: Tokens is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		tokens:     config.Tokens,
		httpClient: httpClient,
		userAgent:  config.UserAgent,
	}, nil
}

// Complete sends a chat completion request and returns the first
// choice.
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	if request.Model == "" {
		return nil, errors.New("llm: request has no model")
	}
	if len(request.Messages) == 0 {
		return nil, errors.New("llm: request has no messages")
	}

	wireRequest := openaiRequest{
		Model:       request.Model,
		Messages:    request.Messages,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
	}
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.tokens,
		http.MethodPost, provider.baseURL+"/chat/completions", wireRequest, provider.userAgent)
	if err != nil {
		return nil, err
	}

	wireResponse, err := decodeBody[openaiResponse](httpResponse)
	if err != nil {
		return nil, err
	}
	if len(wireResponse.Choices) == 0 {
		return nil, errors.New("llm: completion returned no choices")
	}
	choice := wireResponse.Choices[0]
	return &Response{
		Model:        wireResponse.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.PromptTokens,
			OutputTokens: wireResponse.Usage.CompletionTokens,
		},
	}, nil
}

// ListModels reads the service's model catalog. A response without a
// "data" array is a format error. Entries without a name are listed
// under their ID.
func (provider *OpenAI) ListModels(ctx context.Context) ([]Model, error) {
	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.tokens,
		http.MethodGet, provider.baseURL+"/models", nil, provider.userAgent)
	if err != nil {
		return nil, err
	}

	wireResponse, err := decodeBody[openaiModelList](httpResponse)
	if err != nil {
		return nil, err
	}
	if wireResponse.Data == nil {
		return nil, fmt.Errorf("llm: model list response has no \"data\" array")
	}

	models := make([]Model, 0, len(*wireResponse.Data))
	for _, entry := range *wireResponse.Data {
		if entry.ID == "" {
			continue
		}
		name := entry.Name
		if name == "" {
			name = entry.ID
		}
		models = append(models, Model{ID: entry.ID, Name: name})
	}
	return models, nil
}

// --- OpenAI wire types ---

type openaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// openaiModelList uses a pointer so a missing "data" key is
// distinguishable from an empty catalog.
type openaiModelList struct {
	Data *[]openaiModel `json:"data"`
}

type openaiModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
