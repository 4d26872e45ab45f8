// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package richtext renders model output, which is Markdown, into the
// HTML subset Matrix clients show in formatted_body.
//
// Rendering uses GitHub-flavored Markdown with hard line breaks, since
// chat text treats a newline as a line break. Raw HTML in the source
// is not passed through: model output cannot inject markup.
package richtext

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// The goldmark instance is immutable after construction and safe to
// share; Convert allocates per-call state.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownInstance
}

// Render converts Markdown source to HTML.
func Render(source string) (string, error) {
	var output bytes.Buffer
	if err := markdown().Convert([]byte(source), &output); err != nil {
		return "", fmt.Errorf("richtext: rendering markdown: %w", err)
	}
	return string(bytes.TrimRight(output.Bytes(), "\n")), nil
}
