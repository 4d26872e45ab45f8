// Copyright 2026 The ai-llm-matrix-bot Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/catalog"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/history"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/llm"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/moderation"
	"github.com/xwiki-contrib/ai-llm-matrix-bot/lib/ref"
)

// Event is an inbound chat line.
type Event struct {
	Room      ref.RoomID
	Sender    ref.UserID
	Body      string
	Timestamp time.Time
}

// Config configures a Dispatcher.
type Config struct {
	// UserID is the bot's own identity. Lines it sent are ignored.
	UserID ref.UserID
	// DisplayName is the bot's display name. It addresses the bot like
	// ".ai" and names it in acknowledgements. Empty falls back to
	// UserID.
	DisplayName string
	// JoinTime is when the bot came online. Lines at or before it are
	// replays and are ignored.
	JoinTime time.Time
	// Admins may change a room's model.
	Admins []string
	// Temperature is the sampling temperature for completions.
	Temperature float64
	// HelpFile is read on every ".help".
	HelpFile string

	History   *history.Store
	Models    *catalog.Registry
	Gate      *moderation.Gate
	Provider  llm.Provider
	Transport Transport
	Logger    *slog.Logger
}

// Dispatcher routes chat lines to command handlers.
type Dispatcher struct {
	userID      ref.UserID
	displayName string
	joinTime    time.Time
	admins      map[string]bool
	helpFile    string

	parser      *Parser
	history     *history.Store
	models      *catalog.Registry
	gate        *moderation.Gate
	transport   Transport
	synthesizer *Synthesizer
	logger      *slog.Logger

	handlers map[CommandKind]func(context.Context, Event, Command)
}

// New creates a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	if config.UserID.IsZero() {
		return nil, errors.New("chatbot: UserID is required")
	}
	if config.History == nil || config.Models == nil || config.Provider == nil || config.Transport == nil {
		return nil, errors.New("chatbot: History, Models, Provider and Transport are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	displayName := config.DisplayName
	if displayName == "" {
		displayName = config.UserID.String()
	}

	admins := make(map[string]bool, len(config.Admins))
	for _, admin := range config.Admins {
		admins[admin] = true
	}

	d := &Dispatcher{
		userID:      config.UserID,
		displayName: displayName,
		joinTime:    config.JoinTime,
		admins:      admins,
		helpFile:    config.HelpFile,
		parser:      NewParser(config.UserID.String(), displayName),
		history:     config.History,
		models:      config.Models,
		gate:        config.Gate,
		transport:   config.Transport,
		synthesizer: NewSynthesizer(SynthesizerConfig{
			History:     config.History,
			Models:      config.Models,
			Provider:    config.Provider,
			Transport:   config.Transport,
			Temperature: config.Temperature,
			Logger:      logger,
		}),
		logger: logger,
	}
	d.handlers = map[CommandKind]func(context.Context, Event, Command){
		CommandAI:         d.handleAI,
		CommandCrossPost:  d.handleCrossPost,
		CommandPersona:    d.handlePersona,
		CommandCustom:     d.handleCustom,
		CommandModelQuery: d.handleModelQuery,
		CommandModelSet:   d.handleModelSet,
		CommandReset:      d.handleReset,
		CommandStock:      d.handleStock,
		CommandHelp:       d.handleHelp,
	}
	return d, nil
}

// Dispatch handles one chat line to completion, including any model
// round trip, and returns the command it ran. Replayed lines, the bot's
// own lines and lines that are not commands return CommandNone.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) CommandKind {
	if !event.Timestamp.After(d.joinTime) || event.Sender == d.userID {
		return CommandNone
	}

	command := d.parser.Parse(event.Body)
	handler, ok := d.handlers[command.Kind]
	if !ok {
		return CommandNone
	}

	d.logger.Debug("dispatching command",
		"room_id", event.Room,
		"sender", event.Sender,
		"command", command.Kind,
	)
	handler(ctx, event, command)
	return command.Kind
}

func (d *Dispatcher) handleAI(ctx context.Context, event Event, command Command) {
	room, sender := event.Room.String(), event.Sender.String()
	unlock := d.history.Lock(room, sender)
	defer unlock()

	if d.gate.IsFlagged(command.Text) {
		d.reply(ctx, event.Room, d.senderDisplay(ctx, event)+": This message violates the usage policy and was not sent.")
		return
	}
	d.history.Append(llm.RoleUser, room, sender, command.Text)
	d.synthesizer.Synthesize(ctx, event.Room, sender, d.senderDisplay(ctx, event))
}

// handleCrossPost appends to another participant's conversation and
// replies under that participant's name.
func (d *Dispatcher) handleCrossPost(ctx context.Context, event Event, command Command) {
	room := event.Room.String()
	participant := d.resolveParticipant(ctx, event.Room, command.Target)
	unlock := d.history.Lock(room, participant)
	defer unlock()

	if d.gate.IsFlagged(command.Text) {
		d.reply(ctx, event.Room, d.senderDisplay(ctx, event)+": This message violates the usage policy and was not sent.")
		return
	}
	d.history.Append(llm.RoleUser, room, participant, command.Text)
	d.synthesizer.Synthesize(ctx, event.Room, participant, d.participantDisplay(ctx, event.Room, participant))
}

func (d *Dispatcher) handlePersona(ctx context.Context, event Event, command Command) {
	room, sender := event.Room.String(), event.Sender.String()
	unlock := d.history.Lock(room, sender)
	defer unlock()

	if d.gate.IsFlagged(command.Text) {
		d.reply(ctx, event.Room, d.senderDisplay(ctx, event)+": This persona violates the usage policy and was not set. Choose a new persona.")
		return
	}
	d.history.ResetToPersona(room, sender, command.Text)
	d.synthesizer.Synthesize(ctx, event.Room, sender, d.senderDisplay(ctx, event))
}

func (d *Dispatcher) handleCustom(ctx context.Context, event Event, command Command) {
	room, sender := event.Room.String(), event.Sender.String()
	unlock := d.history.Lock(room, sender)
	defer unlock()

	if d.gate.IsFlagged(command.Text) {
		d.reply(ctx, event.Room, d.senderDisplay(ctx, event)+": This custom prompt violates the usage policy and was not set.")
		return
	}
	d.history.ClearToCustomSystem(room, sender, command.Text)
	d.synthesizer.Synthesize(ctx, event.Room, sender, d.senderDisplay(ctx, event))
}

func (d *Dispatcher) handleModelQuery(ctx context.Context, event Event, _ Command) {
	current := d.models.Resolve(event.Room.String())
	d.reply(ctx, event.Room, fmt.Sprintf("Current model for this room: %s\nAvailable models: %s",
		current.Name, strings.Join(d.models.Models(), ", ")))
}

// handleModelSet changes the room's model. Non-admins get no reply.
func (d *Dispatcher) handleModelSet(ctx context.Context, event Event, command Command) {
	if !d.admins[event.Sender.String()] {
		d.logger.Info("ignoring model change from non-admin",
			"room_id", event.Room,
			"sender", event.Sender,
		)
		return
	}

	selection, err := d.models.SetRoomModel(event.Room.String(), command.Target)
	switch {
	case errors.Is(err, catalog.ErrUnknownModel):
		d.reply(ctx, event.Room, "Invalid model name. Try again.")
	case command.Target == catalog.ResetKeyword:
		d.logger.Info("room model reset", "room_id", event.Room, "sender", event.Sender)
		d.reply(ctx, event.Room, "Model for this room reset to "+selection.Name)
	default:
		d.logger.Info("room model changed",
			"room_id", event.Room,
			"sender", event.Sender,
			"model", selection.ID,
		)
		d.reply(ctx, event.Room, fmt.Sprintf("Model for this room set to %s (%s)", selection.Name, selection.ID))
	}
}

func (d *Dispatcher) handleReset(ctx context.Context, event Event, _ Command) {
	room, sender := event.Room.String(), event.Sender.String()
	unlock := d.history.Lock(room, sender)
	d.history.ResetToPersona(room, sender, d.history.DefaultPersona())
	unlock()

	d.reply(ctx, event.Room, fmt.Sprintf("%s reset to default for %s", d.displayName, d.senderDisplay(ctx, event)))
}

func (d *Dispatcher) handleStock(ctx context.Context, event Event, _ Command) {
	room, sender := event.Room.String(), event.Sender.String()
	unlock := d.history.Lock(room, sender)
	d.history.ClearRaw(room, sender)
	unlock()

	d.reply(ctx, event.Room, "Stock settings applied for "+d.senderDisplay(ctx, event))
}

func (d *Dispatcher) handleHelp(ctx context.Context, event Event, _ Command) {
	text, err := os.ReadFile(d.helpFile)
	if err != nil {
		d.logger.Error("loading help file failed", "path", d.helpFile, "error", err)
		d.reply(ctx, event.Room, d.senderDisplay(ctx, event)+": An error occurred while loading the help file. Please try again later.")
		return
	}
	d.reply(ctx, event.Room, string(text))
}

// resolveParticipant finds the participant in room whose display name
// is name. The first match in participant order wins; with no match,
// name itself becomes the participant key.
func (d *Dispatcher) resolveParticipant(ctx context.Context, room ref.RoomID, name string) string {
	for _, participant := range d.history.Participants(room.String()) {
		if d.participantDisplay(ctx, room, participant) == name {
			return participant
		}
	}
	return name
}

func (d *Dispatcher) senderDisplay(ctx context.Context, event Event) string {
	return d.participantDisplay(ctx, event.Room, event.Sender.String())
}

// participantDisplay returns participant's display name in room,
// falling back to the participant key itself when it is not a user ID,
// the lookup fails, or the user has no display name.
func (d *Dispatcher) participantDisplay(ctx context.Context, room ref.RoomID, participant string) string {
	userID, err := ref.ParseUserID(participant)
	if err != nil {
		return participant
	}
	name, err := d.transport.DisplayName(ctx, room, userID)
	if err != nil {
		d.logger.Warn("display name lookup failed",
			"room_id", room,
			"user_id", userID,
			"error", err,
		)
		return participant
	}
	if name == "" {
		return participant
	}
	return name
}

func (d *Dispatcher) reply(ctx context.Context, room ref.RoomID, body string) {
	if err := d.transport.SendText(ctx, room, body); err != nil {
		d.logger.Error("sending message failed", "room_id", room, "error", err)
	}
}
