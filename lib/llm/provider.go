// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/netutil"
)

// Provider produces chat completions.
type Provider interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)
}

// ModelLister enumerates the models a service offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// tokenInvalidator is implemented by token sources that cache. A
// cached token the service rejects with HTTP 401 is dropped so the
// next request obtains a new one.
type tokenInvalidator interface {
	Invalidate()
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token returns the token.
func (token StaticToken) Token(context.Context) (string, error) {
	return string(token), nil
}

// ProviderError is returned when the service responds with an error.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the service's error type string, if any.
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// IsUnauthorized reports an HTTP 401, typically an expired token.
func (err *ProviderError) IsUnauthorized() bool {
	return err.StatusCode == http.StatusUnauthorized
}

// doProviderRequest sends a request with a bearer token and returns the
// response. wireRequest is JSON-encoded when non-nil. Non-200 statuses
// become a *ProviderError with the body already closed; on success the
// caller closes the body.
func doProviderRequest(ctx context.Context, httpClient *http.Client, tokens TokenSource, method, endpoint string, wireRequest any, userAgent string) (*http.Response, error) {
	var body io.Reader
	if wireRequest != nil {
		encoded, err := json.Marshal(wireRequest)
		if err != nil {
			return nil, fmt.Errorf("llm: marshaling request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("llm: creating request: %w", err)
	}
	if wireRequest != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	httpRequest.Header.Set("Accept", "application/json")
	if userAgent != "" {
		httpRequest.Header.Set("User-Agent", userAgent)
	}

	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: obtaining bearer token: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+token)

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("llm: sending request: %w", err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		providerErr := readProviderError(httpResponse)
		if invalidator, ok := tokens.(tokenInvalidator); ok && providerErr.IsUnauthorized() {
			invalidator.Invalidate()
		}
		return nil, providerErr
	}
	return httpResponse, nil
}

// decodeBody decodes a JSON response body into T and closes it.
func decodeBody[T any](httpResponse *http.Response) (*T, error) {
	defer httpResponse.Body.Close()
	var value T
	if err := netutil.DecodeResponse(httpResponse.Body, maxResponseSize, &value); err != nil {
		return nil, fmt.Errorf("llm: decoding response: %w", err)
	}
	return &value, nil
}

// maxResponseSize bounds a decoded response body.
const maxResponseSize = 16 << 20

// readProviderError parses {"error":{"type":"...","message":"..."}},
// falling back to the raw body.
func readProviderError(httpResponse *http.Response) *ProviderError {
	body := netutil.ErrorBody(httpResponse.Body)

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}
