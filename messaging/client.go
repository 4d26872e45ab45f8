// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/netutil"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/secret"
)

// maxResponseSize bounds how much of a response body is read. Initial
// /sync responses on busy accounts are the largest thing the bot sees.
const maxResponseSize = 64 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver, e.g.
	// "https://matrix.example.org".
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. Its Timeout must exceed the /sync long-poll timeout.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
	// UserAgent is sent on every request when non-empty.
	UserAgent string
	// SendRate caps outbound message sends per second across all
	// sessions. Zero means unlimited.
	SendRate rate.Limit
	// SendBurst is the limiter's bucket size. Values below 1 become 1.
	SendBurst int
}

// Client is an unauthenticated Matrix client shared by its sessions.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
	sendLimiter *rate.Limiter
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, errors.New("messaging: HomeserverURL is required")
	}
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must use http or https", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := config.SendRate
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := config.SendBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:     strings.TrimRight(config.HomeserverURL, "/"),
		httpClient:  httpClient,
		logger:      logger,
		userAgent:   config.UserAgent,
		sendLimiter: rate.NewLimiter(limit, burst),
	}, nil
}

// CloseIdleConnections drops pooled connections so the next request
// dials fresh. Call after a network failure.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Login authenticates with a password and returns a DirectSession.
// The password Buffer is read but not closed. deviceID may be empty, in
// which case the server assigns one.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer, deviceID string) (*DirectSession, error) {
	if username == "" {
		return nil, errors.New("messaging: username is required for login")
	}
	if password == nil {
		return nil, errors.New("messaging: password is required for login")
	}

	loginRequest := LoginRequest{
		Type:                     "m.login.password",
		User:                     username,
		Password:                 password.String(),
		DeviceID:                 deviceID,
		InitialDeviceDisplayName: "llm-matrix-bot",
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse login response: %w", err)
	}

	c.logger.Info("logged in to matrix",
		"user_id", authResponse.UserID,
		"device_id", authResponse.DeviceID,
	)
	return c.newSession(authResponse.UserID, authResponse.AccessToken, authResponse.DeviceID)
}

// SessionFromToken creates a DirectSession from an existing access
// token. The token is not validated until the first request.
func (c *Client) SessionFromToken(userID ref.UserID, accessToken string) (*DirectSession, error) {
	return c.newSession(userID, accessToken, "")
}

func (c *Client) newSession(userID ref.UserID, accessToken, deviceID string) (*DirectSession, error) {
	tokenBuffer, err := secret.NewFromString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &DirectSession{
		client:      c,
		accessToken: tokenBuffer,
		userID:      userID,
		deviceID:    deviceID,
	}, nil
}

// doRequest performs a JSON request and returns the response body. On
// a non-2xx status it returns a *MatrixError. accessToken and query may
// be nil.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}
	if c.userAgent != "" {
		request.Header.Set("User-Agent", c.userAgent)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body, maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading response from %s %s: %w", method, path, err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		return nil, fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode
	return nil, &matrixErr
}
