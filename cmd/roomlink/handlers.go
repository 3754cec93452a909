package main

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vntrieu/roomlink/internal/command"
	"github.com/vntrieu/roomlink/internal/session"
)

// registerCommands installs the built-in room command handlers.
// Handlers that touch local player state are deferred to the tick.
func registerCommands(d *command.Dispatcher, player *session.LocalPlayer, logger zerolog.Logger) {
	logger = logger.With().Str("component", "commands").Logger()
	var automation atomic.Bool

	d.Register(command.TypeNotify, command.HandlerFunc(func(msg command.Message) error {
		logger.Info().Str("room_id", msg.RoomID).Str("targets", msg.Targets).Msg(msg.Command)
		return nil
	}))

	d.Register(command.TypeCountdown, command.HandlerFunc(func(msg command.Message) error {
		seconds, err := strconv.Atoi(strings.TrimSpace(msg.Command))
		if err != nil || seconds <= 0 {
			return command.ErrInvalidCommand
		}
		logger.Info().Int("seconds", seconds).Msg("countdown")
		return nil
	}))

	d.Register(command.TypeSwitchProfile, command.Defer(func(msg command.Message) error {
		profile := strings.TrimSpace(msg.Command)
		if profile == "" {
			return command.ErrInvalidCommand
		}
		player.SetProfile(profile)
		logger.Info().Str("profile", profile).Msg("profile switched")
		return nil
	}, logger))

	d.Register(command.TypeToggleAutomation, command.Defer(func(msg command.Message) error {
		var enabled bool
		switch strings.ToLower(strings.TrimSpace(msg.Command)) {
		case "on", "true", "1":
			enabled = true
		case "off", "false", "0":
		case "":
			enabled = !automation.Load()
		default:
			return command.ErrInvalidCommand
		}
		automation.Store(enabled)
		logger.Info().Bool("enabled", enabled).Msg("automation toggled")
		return nil
	}, logger))
}
