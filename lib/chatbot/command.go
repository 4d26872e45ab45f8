// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CommandKind identifies a recognized chat command.
type CommandKind int

const (
	// CommandNone means the line is not addressed to the bot.
	CommandNone CommandKind = iota
	CommandAI
	CommandCrossPost
	CommandPersona
	CommandCustom
	CommandModelQuery
	CommandModelSet
	CommandReset
	CommandStock
	CommandHelp
)

var commandNames = map[CommandKind]string{
	CommandNone:       "none",
	CommandAI:         "ai",
	CommandCrossPost:  "cross-post",
	CommandPersona:    "persona",
	CommandCustom:     "custom",
	CommandModelQuery: "model-query",
	CommandModelSet:   "model-set",
	CommandReset:      "reset",
	CommandStock:      "stock",
	CommandHelp:       "help",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command is a parsed chat line.
type Command struct {
	Kind CommandKind
	// Target is the display name for CommandCrossPost and the model
	// name for CommandModelSet.
	Target string
	// Text is the user-supplied text for CommandAI, CommandCrossPost,
	// CommandPersona and CommandCustom.
	Text string
}

type matcher func(body string) (Command, bool)

// Parser classifies message bodies. It is immutable after creation.
type Parser struct {
	matchers []matcher
}

// NewParser creates a Parser. Each non-empty mention (the bot's user
// ID, its display name) addresses the bot the same way ".ai" does.
func NewParser(mentions ...string) *Parser {
	var prefixes []string
	for _, mention := range mentions {
		if mention != "" {
			prefixes = append(prefixes, mention)
		}
	}
	// Longest first, so a display name that prefixes another mention
	// cannot shadow it.
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	return &Parser{matchers: []matcher{
		textCommand(".ai", CommandAI),
		mentionCommand(prefixes),
		crossPostCommand,
		textCommand(".persona", CommandPersona),
		textCommand(".custom", CommandCustom),
		modelCommand,
		bareCommand(".reset", CommandReset),
		bareCommand(".stock", CommandStock),
		bareCommand(".help", CommandHelp),
	}}
}

// Parse returns the first matching command, or a Command of kind
// CommandNone.
func (p *Parser) Parse(body string) Command {
	body = strings.TrimSpace(body)
	for _, match := range p.matchers {
		if command, ok := match(body); ok {
			return command
		}
	}
	return Command{Kind: CommandNone}
}

// keyword matches word as a whole token at the start of body and
// returns the trimmed remainder.
func keyword(body, word string) (string, bool) {
	if !strings.HasPrefix(body, word) {
		return "", false
	}
	rest := body[len(word):]
	if rest == "" {
		return "", true
	}
	if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsSpace(r) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// textCommand matches "<word> <text>" with non-empty text.
func textCommand(word string, kind CommandKind) matcher {
	return func(body string) (Command, bool) {
		text, ok := keyword(body, word)
		if !ok || text == "" {
			return Command{}, false
		}
		return Command{Kind: kind, Text: text}, true
	}
}

// bareCommand matches word and ignores any arguments.
func bareCommand(word string, kind CommandKind) matcher {
	return func(body string) (Command, bool) {
		if _, ok := keyword(body, word); !ok {
			return Command{}, false
		}
		return Command{Kind: kind}, true
	}
}

// mentionCommand matches a line starting with one of prefixes, followed
// by the end of the mention (whitespace, ':' or ',') and some text.
func mentionCommand(prefixes []string) matcher {
	return func(body string) (Command, bool) {
		for _, prefix := range prefixes {
			if !strings.HasPrefix(body, prefix) {
				continue
			}
			rest := body[len(prefix):]
			if rest == "" {
				continue
			}
			r, _ := utf8.DecodeRuneInString(rest)
			if r == ':' || r == ',' {
				rest = rest[1:]
			} else if !unicode.IsSpace(r) {
				continue
			}
			if text := strings.TrimSpace(rest); text != "" {
				return Command{Kind: CommandAI, Text: text}, true
			}
		}
		return Command{}, false
	}
}

// crossPostCommand matches ".x <displayname> <text>".
func crossPostCommand(body string) (Command, bool) {
	rest, ok := keyword(body, ".x")
	if !ok {
		return Command{}, false
	}
	split := strings.IndexFunc(rest, unicode.IsSpace)
	if split < 0 {
		return Command{}, false
	}
	target, text := rest[:split], strings.TrimSpace(rest[split:])
	if text == "" {
		return Command{}, false
	}
	return Command{Kind: CommandCrossPost, Target: target, Text: text}, true
}

// modelCommand matches a bare ".models" or ".model" as a query and
// ".model <name>" as a set. ".models" followed by anything is not a
// command.
func modelCommand(body string) (Command, bool) {
	if rest, ok := keyword(body, ".models"); ok {
		if rest != "" {
			return Command{}, false
		}
		return Command{Kind: CommandModelQuery}, true
	}
	name, ok := keyword(body, ".model")
	if !ok {
		return Command{}, false
	}
	if name == "" {
		return Command{Kind: CommandModelQuery}, true
	}
	return Command{Kind: CommandModelSet, Target: name}, true
}
