package main

import (
	"context"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/melba-bot/melba/internal/app/nowplaying"
)

// logMessenger is the stand-in chat transport: it logs status payloads
// instead of delivering them. A platform adapter implementing
// nowplaying.Messenger replaces it when the bot is wired to a gateway.
type logMessenger struct{}

func newLogMessenger() *logMessenger {
	return &logMessenger{}
}

func (m *logMessenger) Send(_ context.Context, channelID string, p nowplaying.Payload) (string, error) {
	messageID := uuid.NewString()
	zlog.Info().
		Str("channel", channelID).
		Str("message", messageID).
		Str("title", p.Title).
		Str("footer", p.Footer).
		Msg("status: send")
	return messageID, nil
}

func (m *logMessenger) Edit(_ context.Context, channelID, messageID string, p nowplaying.Payload) error {
	zlog.Info().
		Str("channel", channelID).
		Str("message", messageID).
		Str("title", p.Title).
		Str("footer", p.Footer).
		Bool("controls", p.WithControls).
		Msg("status: edit")
	return nil
}

func (m *logMessenger) Delete(_ context.Context, channelID, messageID string) error {
	zlog.Info().
		Str("channel", channelID).
		Str("message", messageID).
		Msg("status: delete")
	return nil
}
