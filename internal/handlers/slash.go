package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/internal/commands"
)

// SlashRunner runs slash commands and player buttons
type SlashRunner interface {
	Run(ctx context.Context, name string, req commands.Request) string
	Panel(req commands.Request) commands.Panel
}

// SlashHandler answers /player interactions and player button presses
type SlashHandler struct {
	commands SlashRunner
	logger   *zap.Logger
}

func NewSlashHandler(runner SlashRunner, logger *zap.Logger) *SlashHandler {
	return &SlashHandler{commands: runner, logger: logger.Named("slash")}
}

// OnInteractionCreate is registered with discordgo.Session.AddHandler
func (h *SlashHandler) OnInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.onCommand(s, i)
	case discordgo.InteractionMessageComponent:
		h.onButton(s, i)
	}
}

func (h *SlashHandler) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name, req, ok := commands.SlashRequest(i)
	if !ok {
		return
	}

	// Joining and fetching can outlast the 3s interaction deadline
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		h.logger.Warn("failed to acknowledge interaction", zap.Error(err))
		return
	}

	if name == commands.PanelCommand {
		if _, err := s.InteractionResponseEdit(i.Interaction, h.commands.Panel(req).Edit()); err != nil {
			h.logger.Warn("failed to send player", zap.Error(err))
		}
		return
	}

	reply := h.commands.Run(context.Background(), name, req)

	if reply == "" {
		if err := s.InteractionResponseDelete(i.Interaction); err != nil {
			h.logger.Warn("failed to delete interaction response", zap.Error(err))
		}
		return
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		h.logger.Warn("failed to send interaction response", zap.Error(err))
	}
}

// onButton runs the pressed button's command, then refreshes the player
// message in place. Replies go to the presser only.
func (h *SlashHandler) onButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name, req, ok := commands.ButtonRequest(i)
	if !ok {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		h.logger.Warn("failed to acknowledge button", zap.Error(err))
		return
	}

	reply := h.commands.Run(context.Background(), name, req)

	if _, err := s.InteractionResponseEdit(i.Interaction, h.commands.Panel(req).Edit()); err != nil {
		h.logger.Warn("failed to refresh player", zap.Error(err))
	}

	if reply == "" {
		return
	}

	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: reply,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		h.logger.Warn("failed to send button reply", zap.Error(err))
	}
}

// RegisterSlashCommands replaces the application's global commands with /player
func RegisterSlashCommands(s *discordgo.Session, appID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{commands.SlashCommand()})
	return err
}
