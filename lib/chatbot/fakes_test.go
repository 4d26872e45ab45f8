// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/catalog"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/history"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/llm"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/moderation"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

var (
	botUser   = ref.MustParseUserID("@bot:example.org")
	alice     = ref.MustParseUserID("@alice:example.org")
	bob       = ref.MustParseUserID("@bob:example.org")
	testRoom  = ref.MustParseRoomID("!room:example.org")
	joinTime  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	afterJoin = joinTime.Add(time.Second)
)

const defaultPersona = "a helpful assistant"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	room     ref.RoomID
	body     string
	markdown bool
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	names    map[ref.UserID]string
	nameErrs map[ref.UserID]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		names: map[ref.UserID]string{
			alice: "Alice",
			bob:   "Bob",
		},
		nameErrs: make(map[ref.UserID]error),
	}
}

func (f *fakeTransport) SendText(_ context.Context, room ref.RoomID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{room: room, body: body})
	return nil
}

func (f *fakeTransport) SendMarkdown(_ context.Context, room ref.RoomID, markdown string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{room: room, body: markdown, markdown: true})
	return nil
}

func (f *fakeTransport) DisplayName(_ context.Context, _ ref.RoomID, user ref.UserID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nameErrs[user]; err != nil {
		return "", err
	}
	return f.names[user], nil
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	reply    string
	err      error
}

func (f *fakeProvider) Complete(_ context.Context, request llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Model: request.Model, Content: f.reply}, nil
}

func (f *fakeProvider) recorded() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

type fakeLister struct {
	models []llm.Model
}

func (f fakeLister) ListModels(context.Context) ([]llm.Model, error) {
	return f.models, nil
}

type harness struct {
	dispatcher *Dispatcher
	transport  *fakeTransport
	provider   *fakeProvider
	history    *history.Store
	models     *catalog.Registry
	helpFile   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	models := catalog.New(fakeLister{models: []llm.Model{
		{ID: "AI.Models.llama", Name: "llama"},
		{ID: "AI.Models.gpt-x", Name: "gpt-x"},
	}}, catalog.Config{DefaultModel: "llama"}, discardLogger())
	models.SelectDefault(models.Refresh(context.Background()))

	helpFile := filepath.Join(t.TempDir(), "help.txt")
	if err := os.WriteFile(helpFile, []byte("Commands: .ai .x .persona"), 0o600); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		transport: newFakeTransport(),
		provider:  &fakeProvider{reply: "Hello!"},
		history:   history.New(defaultPersona),
		models:    models,
		helpFile:  helpFile,
	}
	dispatcher, err := New(Config{
		UserID:      botUser,
		DisplayName: "InfiniGPT",
		JoinTime:    joinTime,
		Admins:      []string{alice.String()},
		Temperature: 0.7,
		HelpFile:    helpFile,
		History:     h.history,
		Models:      models,
		Gate: moderation.New(moderation.Config{
			Enabled:        true,
			Strategy:       moderation.StrategyForbiddenWords,
			ForbiddenWords: []string{"badword"},
		}, discardLogger()),
		Provider:  h.provider,
		Transport: h.transport,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.dispatcher = dispatcher
	return h
}

func (h *harness) send(sender ref.UserID, body string) CommandKind {
	return h.dispatcher.Dispatch(context.Background(), Event{
		Room:      testRoom,
		Sender:    sender,
		Body:      body,
		Timestamp: afterJoin,
	})
}

func (h *harness) conversation(t *testing.T, participant string) []llm.Message {
	t.Helper()
	conversation, ok := h.history.Lookup(testRoom.String(), participant)
	if !ok {
		t.Fatalf("no conversation for %s", participant)
	}
	return conversation
}

func (h *harness) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	sent := h.transport.messages()
	if len(sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return sent[len(sent)-1]
}
