package handlers

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Kolega/internal/commands"
)

// CommandRunner runs chat commands
type CommandRunner interface {
	Prefix() string
	Handle(ctx context.Context, name string, req commands.Request)
}

// MessageHandler routes prefixed chat messages to the command layer
type MessageHandler struct {
	commands CommandRunner
}

func NewMessageHandler(runner CommandRunner) *MessageHandler {
	return &MessageHandler{commands: runner}
}

// OnMessageCreate is registered with discordgo.Session.AddHandler
func (h *MessageHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}

	name, req, ok := Parse(h.commands.Prefix(), botID, m)
	if !ok {
		return
	}

	h.commands.Handle(context.Background(), name, req)
}

// Parse extracts a command from a guild message. Messages from bots,
// direct messages and unprefixed text are ignored. Mentioning the bot
// alone asks for help.
func Parse(prefix, botID string, m *discordgo.MessageCreate) (string, commands.Request, bool) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == botID || m.GuildID == "" {
		return "", commands.Request{}, false
	}

	req := commands.Request{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
	}

	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, prefix) {
		if botID != "" && mentions(m, botID) {
			return "help", req, true
		}
		return "", commands.Request{}, false
	}

	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", commands.Request{}, false
	}

	req.Args = fields[1:]
	return fields[0], req, true
}

func mentions(m *discordgo.MessageCreate, userID string) bool {
	for _, u := range m.Mentions {
		if u.ID == userID {
			return true
		}
	}
	return false
}
