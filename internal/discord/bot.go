package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/lessucettes/adresu-automod/internal/automod"
)

// Handler evaluates one message; *automod.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, msg automod.Message) (automod.Outcome, error)
}

// Bot feeds gateway MessageCreate events into a Handler.
type Bot struct {
	session *discordgo.Session
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBot(token string) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	dg.StateEnabled = true

	return &Bot{session: dg}, nil
}

// Session exposes the REST client for building a Sink.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Start opens the gateway and dispatches messages to h until Stop.
func (b *Bot) Start(ctx context.Context, h Handler) error {
	b.handler = h
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord session ready", "session_id", r.SessionID, "guilds", len(r.Guilds))
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	return b.session.Close()
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	dispatch(b.ctx, b.handler, ToMessage(s.State, m.Message))
}

func dispatch(ctx context.Context, h Handler, msg automod.Message) {
	out, err := h.Handle(ctx, msg)
	if err != nil {
		slog.Error("Automod failed to handle message",
			"guild_id", msg.GuildID, "channel_id", msg.ChannelID, "message_id", msg.ID, "error", err)
		return
	}
	if out.Violated() {
		slog.Debug("Message handled",
			"message_id", msg.ID, "violation", out.Violation, "active_warnings", out.ActiveWarnings)
	}
}
