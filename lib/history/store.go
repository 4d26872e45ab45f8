// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"sort"
	"sync"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/llm"
)

// MaxMessages is the soft cap on a conversation's length.
const MaxMessages = 24

// PersonaPreamble wraps a personality description in the role-play
// instruction used as a conversation's system message.
func PersonaPreamble(persona string) string {
	return "assume the personality of " + persona +
		".  roleplay and never break character. keep your responses relatively short."
}

type key struct {
	room        string
	participant string
}

// Store maps (room, participant) to a conversation. Safe for concurrent
// use.
type Store struct {
	defaultPersona string

	mu    sync.Mutex
	rooms map[string]map[string][]llm.Message

	turnMu    sync.Mutex
	turnLocks map[key]*sync.Mutex
}

// New creates an empty Store that seeds new conversations with the
// preamble for defaultPersona.
func New(defaultPersona string) *Store {
	return &Store{
		defaultPersona: defaultPersona,
		rooms:          make(map[string]map[string][]llm.Message),
		turnLocks:      make(map[key]*sync.Mutex),
	}
}

// DefaultPersona returns the persona new conversations are seeded with.
func (s *Store) DefaultPersona() string {
	return s.defaultPersona
}

// Lock acquires the turn lock for one conversation and returns the
// function that releases it.
func (s *Store) Lock(room, participant string) (unlock func()) {
	s.turnMu.Lock()
	lock, ok := s.turnLocks[key{room, participant}]
	if !ok {
		lock = &sync.Mutex{}
		s.turnLocks[key{room, participant}] = lock
	}
	s.turnMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Append adds a message. A missing or empty conversation is first
// seeded with the default persona preamble. When the result exceeds
// MaxMessages, the entries at indices 1 and 2 are evicted.
func (s *Store) Append(role llm.Role, room, participant, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := s.get(room, participant)
	if len(conversation) == 0 {
		conversation = []llm.Message{{Role: llm.RoleSystem, Content: PersonaPreamble(s.defaultPersona)}}
	}
	conversation = append(conversation, llm.Message{Role: role, Content: text})
	if len(conversation) > MaxMessages {
		conversation = append(conversation[:1], conversation[3:]...)
	}
	s.put(room, participant, conversation)
}

// ResetToPersona replaces the conversation with a single system
// message built from persona.
func (s *Store) ResetToPersona(room, participant, persona string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(room, participant, []llm.Message{{Role: llm.RoleSystem, Content: PersonaPreamble(persona)}})
}

// ClearToCustomSystem replaces the conversation with prompt, verbatim,
// as its only system message.
func (s *Store) ClearToCustomSystem(room, participant, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(room, participant, []llm.Message{{Role: llm.RoleSystem, Content: prompt}})
}

// ClearRaw empties the conversation without seeding a preamble. The
// next Append reseeds it with the default persona.
func (s *Store) ClearRaw(room, participant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(room, participant, []llm.Message{})
}

// Lookup returns a copy of the conversation, or false if the pair has
// never been seen.
func (s *Store) Lookup(room, participant string) ([]llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants, ok := s.rooms[room]
	if !ok {
		return nil, false
	}
	conversation, ok := participants[participant]
	if !ok {
		return nil, false
	}
	return append([]llm.Message(nil), conversation...), true
}

// Participants returns the sorted participant IDs with a conversation
// in room.
func (s *Store) Participants(room string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants := make([]string, 0, len(s.rooms[room]))
	for participant := range s.rooms[room] {
		participants = append(participants, participant)
	}
	sort.Strings(participants)
	return participants
}

func (s *Store) get(room, participant string) []llm.Message {
	return s.rooms[room][participant]
}

func (s *Store) put(room, participant string, conversation []llm.Message) {
	participants, ok := s.rooms[room]
	if !ok {
		participants = make(map[string][]llm.Message)
		s.rooms[room] = participants
	}
	participants[participant] = conversation
}
