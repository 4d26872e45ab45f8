// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/llm"
)

type fakeLister struct {
	models []llm.Model
	err    error
}

func (f *fakeLister) ListModels(context.Context) ([]llm.Model, error) {
	return f.models, f.err
}

var serviceModels = []llm.Model{
	{ID: "AI.Models.mixtral", Name: "mixtral"},
	{ID: "AI.Models.waise-llama3", Name: "waise-llama3"},
	{ID: "AI.Models.gpt-x", Name: "gpt-x"},
}

const room = "!room:example.org"

func TestRefreshUnrestricted(t *testing.T) {
	t.Parallel()

	registry := New(&fakeLister{models: serviceModels}, Config{DefaultModel: "waise-llama3"}, nil)
	names := registry.Refresh(context.Background())

	want := []string{"gpt-x", "mixtral", "waise-llama3"}
	assertNames(t, names, want)
	assertNames(t, registry.Models(), want)

	selection, err := registry.SetRoomModel(room, "mixtral")
	if err != nil || selection.ID != "AI.Models.mixtral" {
		t.Errorf("SetRoomModel(mixtral) = %+v, %v", selection, err)
	}
	if _, err := registry.SetRoomModel(room, "absent"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("SetRoomModel(absent) error = %v, want ErrUnknownModel", err)
	}
}

func TestRefreshRestricted(t *testing.T) {
	t.Parallel()

	registry := New(&fakeLister{models: serviceModels}, Config{
		AllowList: []string{"waise-llama3", "not-offered"},
		Restrict:  true,
	}, nil)
	assertNames(t, registry.Refresh(context.Background()), []string{"waise-llama3"})
}

func TestRefreshFailureFallback(t *testing.T) {
	t.Parallel()

	failing := &fakeLister{err: errors.New("connection refused")}

	restricted := New(failing, Config{AllowList: []string{"b", "a"}, Restrict: true}, nil)
	assertNames(t, restricted.Refresh(context.Background()), []string{"a", "b"})

	unrestricted := New(failing, Config{AllowList: []string{"a"}}, nil)
	assertNames(t, unrestricted.Refresh(context.Background()), nil)
}

func TestSelectDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configured string
		available  []string
		want       string
	}{
		{"configured available", "mixtral", []string{"gpt-x", "mixtral"}, "mixtral"},
		{"first alphabetical", "absent", []string{"zeta", "alpha"}, "alpha"},
		{"degraded", "absent", nil, "absent"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registry := New(&fakeLister{}, Config{DefaultModel: test.configured}, nil)
			if got := registry.SelectDefault(test.available); got != test.want {
				t.Errorf("SelectDefault() = %q, want %q", got, test.want)
			}
			if got := registry.Default().Name; got != test.want {
				t.Errorf("Default().Name = %q, want %q", got, test.want)
			}
		})
	}
}

func TestResolveWithoutOverride(t *testing.T) {
	t.Parallel()

	registry := New(&fakeLister{models: serviceModels}, Config{DefaultModel: "waise-llama3"}, nil)
	registry.SelectDefault(registry.Refresh(context.Background()))

	got := registry.Resolve(room)
	want := Selection{Name: "waise-llama3", ID: "AI.Models.waise-llama3"}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestSetThenResetOverride(t *testing.T) {
	t.Parallel()

	registry := New(&fakeLister{models: serviceModels}, Config{DefaultModel: "waise-llama3"}, nil)
	registry.SelectDefault(registry.Refresh(context.Background()))
	defaultSelection := registry.Resolve(room)

	selection, err := registry.SetRoomModel(room, "gpt-x")
	if err != nil {
		t.Fatalf("SetRoomModel: %v", err)
	}
	if selection.ID != "AI.Models.gpt-x" {
		t.Errorf("selection = %+v", selection)
	}
	if got := registry.Resolve(room); got != selection {
		t.Errorf("Resolve after set = %+v, want %+v", got, selection)
	}
	if got := registry.Resolve("!other:example.org"); got != defaultSelection {
		t.Errorf("override leaked to another room: %+v", got)
	}

	reset, err := registry.SetRoomModel(room, ResetKeyword)
	if err != nil {
		t.Fatalf("SetRoomModel(reset): %v", err)
	}
	if reset != defaultSelection || registry.Resolve(room) != defaultSelection {
		t.Errorf("after reset Resolve = %+v, want %+v", registry.Resolve(room), defaultSelection)
	}
}

func TestSetUnknownModel(t *testing.T) {
	t.Parallel()

	registry := New(&fakeLister{models: serviceModels}, Config{DefaultModel: "waise-llama3"}, nil)
	registry.Refresh(context.Background())
	registry.SetRoomModel(room, "mixtral")

	if _, err := registry.SetRoomModel(room, "nonexistent"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("SetRoomModel(nonexistent) error = %v", err)
	}
	if got := registry.Resolve(room).Name; got != "mixtral" {
		t.Errorf("failed set changed override to %q", got)
	}
}

func TestFallbackCatalogUsesNameAsID(t *testing.T) {
	t.Parallel()

	registry := New(&fakeLister{err: errors.New("down")}, Config{
		AllowList:    []string{"AI.Models.waise-llama3"},
		Restrict:     true,
		DefaultModel: "AI.Models.waise-llama3",
	}, nil)
	registry.SelectDefault(registry.Refresh(context.Background()))

	got := registry.Resolve(room)
	if got.ID != "AI.Models.waise-llama3" {
		t.Errorf("Resolve() = %+v", got)
	}
}

func assertNames(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
