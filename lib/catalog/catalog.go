// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog tracks which completion models are usable and which
// one each room talks to.
//
// The catalog is rebuilt from the service's model list by
// [Registry.Refresh], restricted to the configured allow-list when
// restriction is on, and kept sorted by name so "first available" is
// alphabetical. Between refreshes it is static.
//
// Room overrides map a room to a model chosen by an admin. The
// registry does not authorize; callers check privileges first. The
// name "reset" is reserved: passing it to [Registry.SetRoomModel]
// clears the override, so a real model of that name cannot be
// selected.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/llm"
)

// ResetKeyword clears a room override instead of naming a model.
const ResetKeyword = "reset"

// ErrUnknownModel is returned by SetRoomModel for a name that is
// neither in the catalog nor ResetKeyword.
var ErrUnknownModel = errors.New("catalog: unknown model name")

// Selection is a resolved model: the name users see and the ID sent to
// the service.
type Selection struct {
	Name string
	ID   string
}

// Config configures a Registry.
type Config struct {
	// AllowList is the configured model names.
	AllowList []string
	// Restrict limits the catalog to AllowList.
	Restrict bool
	// DefaultModel is the preferred process-wide model name.
	DefaultModel string
}

// Registry is the model catalog plus room overrides. Safe for
// concurrent use.
type Registry struct {
	lister ModelLister
	config Config
	logger *slog.Logger

	mu        sync.RWMutex
	names     []string
	ids       map[string]string
	current   string
	overrides map[string]Selection
}

// ModelLister is the service's catalog endpoint.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.Model, error)
}

// New creates a Registry with an empty catalog. The process default is
// the configured default until SelectDefault runs.
func New(lister ModelLister, config Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		lister:    lister,
		config:    config,
		logger:    logger,
		ids:       make(map[string]string),
		current:   config.DefaultModel,
		overrides: make(map[string]Selection),
	}
}

// Refresh lists the service's models once and rebuilds the catalog.
// On failure it logs and falls back to the allow-list when restricted,
// or to an empty catalog otherwise. It returns the sorted names.
func (r *Registry) Refresh(ctx context.Context) []string {
	models, err := r.lister.ListModels(ctx)
	if err != nil {
		r.logger.Error("listing models failed, using fallback catalog",
			"error", err,
			"restricted", r.config.Restrict,
		)
		var names []string
		if r.config.Restrict {
			names = append(names, r.config.AllowList...)
			sort.Strings(names)
		}
		r.mu.Lock()
		r.names = names
		r.ids = make(map[string]string)
		r.mu.Unlock()
		return append([]string(nil), names...)
	}

	allowed := make(map[string]bool, len(r.config.AllowList))
	for _, name := range r.config.AllowList {
		allowed[name] = true
	}

	ids := make(map[string]string, len(models))
	for _, model := range models {
		if r.config.Restrict && !allowed[model.Name] {
			continue
		}
		ids[model.Name] = model.ID
	}
	names := make([]string, 0, len(ids))
	for name := range ids {
		names = append(names, name)
	}
	sort.Strings(names)

	r.mu.Lock()
	r.names = names
	r.ids = ids
	r.mu.Unlock()

	r.logger.Info("model catalog refreshed", "models", len(names))
	return append([]string(nil), names...)
}

// SelectDefault picks the process default from available: the
// configured default if present, else the first available name. With
// nothing available it keeps the configured default and logs that the
// bot is degraded.
func (r *Registry) SelectDefault(available []string) string {
	selected := r.config.DefaultModel
	if len(available) == 0 {
		r.logger.Error("no models available, keeping configured default",
			"model", selected,
		)
	} else if !contains(available, selected) {
		sorted := append([]string(nil), available...)
		sort.Strings(sorted)
		r.logger.Warn("configured default model unavailable, using first available",
			"configured", selected,
			"model", sorted[0],
		)
		selected = sorted[0]
	}

	r.mu.Lock()
	r.current = selected
	r.mu.Unlock()
	return selected
}

// Default returns the process default model as a Selection.
func (r *Registry) Default() Selection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectionLocked(r.current)
}

// Models returns the sorted catalog names.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// SetRoomModel records an override for room. ResetKeyword clears it
// and returns the process default. A name outside the catalog returns
// ErrUnknownModel and leaves the override untouched.
func (r *Registry) SetRoomModel(room, name string) (Selection, error) {
	if name == ResetKeyword {
		r.ClearRoomModel(room)
		return r.Default(), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !contains(r.names, name) {
		return Selection{}, ErrUnknownModel
	}
	selection := r.selectionLocked(name)
	r.overrides[room] = selection
	return selection, nil
}

// ClearRoomModel removes room's override.
func (r *Registry) ClearRoomModel(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, room)
}

// Resolve returns room's override, or the process default.
func (r *Registry) Resolve(room string) Selection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if selection, ok := r.overrides[room]; ok {
		return selection
	}
	return r.selectionLocked(r.current)
}

// selectionLocked maps a name to its ID, using the name itself when
// the catalog has no ID for it (fallback catalogs and the degraded
// default).
func (r *Registry) selectionLocked(name string) Selection {
	if id, ok := r.ids[name]; ok && id != "" {
		return Selection{Name: name, ID: id}
	}
	return Selection{Name: name, ID: name}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
