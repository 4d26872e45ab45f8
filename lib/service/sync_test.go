// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/clock"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/messaging"
)

type syncResult struct {
	response *messaging.SyncResponse
	err      error
}

type syncCall struct {
	options messaging.SyncOptions
	at      time.Time
}

// scriptedSyncer returns its results in order, then blocks until the
// context is cancelled.
type scriptedSyncer struct {
	clock *clock.FakeClock

	mu         sync.Mutex
	results    []syncResult
	calls      []syncCall
	idleClosed int
}

func (s *scriptedSyncer) CloseIdleConnections() {
	s.mu.Lock()
	s.idleClosed++
	s.mu.Unlock()
}

func (s *scriptedSyncer) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, syncCall{options: options, at: s.clock.Now()})
	if len(s.results) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	result := s.results[0]
	s.results = s.results[1:]
	s.mu.Unlock()
	return result.response, result.err
}

func (s *scriptedSyncer) recordedCalls() []syncCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]syncCall(nil), s.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestInitialSync(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	syncer := &scriptedSyncer{clock: fakeClock, results: []syncResult{
		{response: &messaging.SyncResponse{NextBatch: "s1"}},
	}}

	token, response, err := InitialSync(context.Background(), syncer, `{"room":{}}`)
	if err != nil {
		t.Fatalf("InitialSync: %v", err)
	}
	if token != "s1" || response.NextBatch != "s1" {
		t.Errorf("InitialSync() token = %q", token)
	}
	calls := syncer.recordedCalls()
	if len(calls) != 1 || calls[0].options.Since != "" || calls[0].options.SetTimeout ||
		!calls[0].options.FullState || calls[0].options.Filter != `{"room":{}}` {
		t.Errorf("unexpected initial sync options: %+v", calls)
	}
}

func TestInitialSyncError(t *testing.T) {
	syncer := &scriptedSyncer{clock: clock.Fake(epoch), results: []syncResult{
		{err: errors.New("connection refused")},
	}}
	if _, _, err := InitialSync(context.Background(), syncer, ""); err == nil {
		t.Fatal("InitialSync succeeded, want error")
	}
}

func TestRunSyncLoopBackoff(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	syncer := &scriptedSyncer{clock: fakeClock, results: []syncResult{
		{err: errors.New("bad gateway")},
		{err: errors.New("bad gateway")},
		{response: &messaging.SyncResponse{NextBatch: "s3"}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- RunSyncLoop(ctx, syncer, SyncConfig{Filter: "{}"}, "s1", func(_ context.Context, response *messaging.SyncResponse) {
			handled <- response.NextBatch
		}, fakeClock, discardLogger())
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(2 * time.Second)

	select {
	case batch := <-handled:
		if batch != "s3" {
			t.Errorf("handled batch %q, want s3", batch)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunSyncLoop returned %v after cancellation", err)
	}

	calls := syncer.recordedCalls()
	if len(calls) != 4 {
		t.Fatalf("sync called %d times, want 4", len(calls))
	}
	wantOffsets := []time.Duration{0, time.Second, 3 * time.Second, 3 * time.Second}
	for i, call := range calls {
		if got := call.at.Sub(epoch); got != wantOffsets[i] {
			t.Errorf("call %d at +%s, want +%s", i, got, wantOffsets[i])
		}
		if !call.options.SetTimeout || call.options.Timeout != 30000 || call.options.Filter != "{}" {
			t.Errorf("call %d options = %+v", i, call.options)
		}
	}
	if calls[0].options.Since != "s1" || calls[3].options.Since != "s3" {
		t.Errorf("since tokens = %q, %q", calls[0].options.Since, calls[3].options.Since)
	}
	syncer.mu.Lock()
	idleClosed := syncer.idleClosed
	syncer.mu.Unlock()
	if idleClosed != 2 {
		t.Errorf("idle connections closed %d times, want once per failure", idleClosed)
	}
}

func TestRunSyncLoopAdvancesPastUndecodableRooms(t *testing.T) {
	batches := map[string]string{
		"s1": `{"next_batch":"s2","rooms":{"join":{
			"!room:example.org":{"timeline":{"events":[]}},
			"!broken:example.org":{"timeline":{"events":"unexpected"}}
		},"invite":{"!v12HashOnlyRoomId":{"invite_state":{"events":[]}}}}}`,
		"s2": `{"next_batch":"s3","rooms":{}}`,
	}
	var (
		mu     sync.Mutex
		sinces []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		since := request.URL.Query().Get("since")
		mu.Lock()
		sinces = append(sinces, since)
		mu.Unlock()
		body, ok := batches[since]
		if !ok {
			writer.WriteHeader(http.StatusInternalServerError)
			writer.Write([]byte(`{"errcode":"M_UNKNOWN","error":"unexpected since token"}`))
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(body))
	}))
	defer server.Close()

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: server.URL, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@bot:example.org"), "token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled []*messaging.SyncResponse
	done := make(chan error, 1)
	go func() {
		done <- RunSyncLoop(ctx, session, SyncConfig{}, "s1", func(_ context.Context, response *messaging.SyncResponse) {
			handled = append(handled, response)
			if len(handled) == 2 {
				cancel()
			}
		}, clock.Fake(epoch), discardLogger())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunSyncLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync loop did not get past the batch with an undecodable room")
	}

	if len(handled) != 2 || handled[0].NextBatch != "s2" || handled[1].NextBatch != "s3" {
		t.Fatalf("handled %d batches", len(handled))
	}
	first := handled[0].Rooms
	if _, ok := first.Join["!room:example.org"]; !ok || first.Undecodable["!broken:example.org"] == nil {
		t.Errorf("first batch rooms = %+v", first)
	}
	if _, ok := first.Invite["!v12HashOnlyRoomId"]; !ok {
		t.Errorf("server-less invite dropped: %+v", first.Invite)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(sinces, ",") != "s1,s2" {
		t.Errorf("since tokens sent = %v", sinces)
	}
}

func TestRunSyncLoopHonorsRetryAfter(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	syncer := &scriptedSyncer{clock: fakeClock, results: []syncResult{
		{err: &messaging.MatrixError{Code: messaging.ErrCodeLimitExceeded, RetryAfterMillis: 5000, StatusCode: http.StatusTooManyRequests}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunSyncLoop(ctx, syncer, SyncConfig{}, "s1", func(context.Context, *messaging.SyncResponse) {}, fakeClock, discardLogger())
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
	if pending := fakeClock.PendingCount(); pending != 1 {
		t.Fatalf("retry fired after 1s, pending = %d", pending)
	}
	fakeClock.Advance(4 * time.Second)
	if pending := fakeClock.PendingCount(); pending != 0 {
		t.Fatalf("retry did not fire after 5s, pending = %d", pending)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunSyncLoop: %v", err)
	}
}

func TestRunSyncLoopStopsOnUnknownToken(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	syncer := &scriptedSyncer{clock: fakeClock, results: []syncResult{
		{err: &messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, StatusCode: http.StatusUnauthorized}},
	}}

	err := RunSyncLoop(context.Background(), syncer, SyncConfig{}, "s1", func(context.Context, *messaging.SyncResponse) {
		t.Error("handler called")
	}, fakeClock, discardLogger())
	if !messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
		t.Fatalf("RunSyncLoop error = %v, want M_UNKNOWN_TOKEN", err)
	}
}

func TestRunSyncLoopCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	syncer := &scriptedSyncer{clock: clock.Fake(epoch)}
	if err := RunSyncLoop(ctx, syncer, SyncConfig{}, "", func(context.Context, *messaging.SyncResponse) {}, clock.Fake(epoch), discardLogger()); err != nil {
		t.Fatalf("RunSyncLoop: %v", err)
	}
	if calls := syncer.recordedCalls(); len(calls) != 0 {
		t.Errorf("sync called %d times after cancellation", len(calls))
	}
}
