// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response body reads, so a misbehaving
// homeserver or completion service cannot make the bot allocate without
// limit. The helpers are for JSON API responses, not streams.
package netutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrorBodyLimit bounds how much of an error response is kept for
// diagnostics.
const ErrorBodyLimit = 4096

// ErrResponseTooLarge is returned when a body exceeds its limit.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ReadResponse reads body up to limit bytes. A longer body is an
// ErrResponseTooLarge error rather than a silently truncated read.
func ReadResponse(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, limit)
	}
	return data, nil
}

// DecodeResponse reads body up to limit bytes and JSON-decodes it into
// v.
func DecodeResponse(body io.Reader, limit int64, v any) error {
	data, err := ReadResponse(body, limit)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns up to ErrorBodyLimit bytes of an error response,
// whitespace-trimmed. Read errors are ignored: a partial body is still
// useful in an error message.
func ErrorBody(body io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(body, ErrorBodyLimit))
	return bytes.TrimSpace(data)
}
