// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ReadFromPath reads a secret from a file, or from stdin if path is
// "-". Surrounding whitespace is trimmed. An empty result is an error.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte
	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("secret: reading stdin: %w", err)
			}
			return nil, errors.New("secret: stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("secret: %w", err)
		}
	}
	return fromTrimmed(data, path)
}

// ReadPassword writes prompt to output and reads one line from the
// terminal on fd without echo. It fails if fd is not a terminal.
func ReadPassword(fd int, prompt string, output io.Writer) (*Buffer, error) {
	if !term.IsTerminal(fd) {
		return nil, errors.New("secret: password prompt requires a terminal")
	}
	fmt.Fprint(output, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(output)
	if err != nil {
		return nil, fmt.Errorf("secret: reading password: %w", err)
	}
	return fromTrimmed(data, "terminal")
}

func fromTrimmed(data []byte, source string) (*Buffer, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret: %s is empty", source)
	}
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	return buffer, err
}
