package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Kolega/pkg/voice"
)

// PanelCommand is the slash subcommand that posts the interactive player
const PanelCommand = "player"

// Player button custom IDs
const (
	ButtonPlay  = "play"
	ButtonPause = "pause"
	ButtonNext  = "next"
)

// buttonCommands maps player buttons to chat command names
var buttonCommands = map[string]string{
	ButtonPlay:  "resume",
	ButtonPause: "pause",
	ButtonNext:  "skip",
}

// Panel is the interactive player message: the current track with
// play/pause and next buttons
type Panel struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// Edit returns the panel as an interaction response edit. Empty embeds and
// components are sent explicitly so stale buttons are removed.
func (p Panel) Edit() *discordgo.WebhookEdit {
	embeds := p.Embeds
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	components := p.Components
	if components == nil {
		components = []discordgo.MessageComponent{}
	}

	return &discordgo.WebhookEdit{
		Content:    &p.Content,
		Embeds:     &embeds,
		Components: &components,
	}
}

// Panel renders the player for the request's guild. Without a track in
// flight it is a plain reply with no buttons.
func (h *Handler) Panel(req Request) Panel {
	session, ok := h.registry.Get(req.GuildID)
	if !ok {
		return Panel{Content: h.catalog.Player.NothingPlaying}
	}

	track, ok := session.NowPlaying()
	if !ok {
		return Panel{Content: h.catalog.Player.NothingPlaying}
	}

	status := session.Status()
	queued := len(session.SongQueue())

	return Panel{
		Content: h.catalog.Current(track.DisplayName, status == voice.PlayerPaused, queued),
		Embeds: []*discordgo.MessageEmbed{
			{Title: track.DisplayName, URL: track.URL},
		},
		Components: PlayerComponents(status == voice.PlayerPlaying, queued),
	}
}

// PlayerComponents builds the button row. The action button pauses while
// playing and resumes otherwise; next is disabled on an empty queue.
func PlayerComponents(playing bool, queued int) []discordgo.MessageComponent {
	action := discordgo.Button{
		Style:    discordgo.PrimaryButton,
		CustomID: ButtonPlay,
		Emoji:    &discordgo.ComponentEmoji{Name: "▶️"},
	}
	if playing {
		action.CustomID = ButtonPause
		action.Emoji = &discordgo.ComponentEmoji{Name: "⏸️"}
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				action,
				discordgo.Button{
					Style:    discordgo.SecondaryButton,
					CustomID: ButtonNext,
					Disabled: queued == 0,
					Emoji:    &discordgo.ComponentEmoji{Name: "⏭️"},
				},
			},
		},
	}
}

// ButtonRequest converts a player button press into a command name and
// request. ok is false for other interactions.
func ButtonRequest(i *discordgo.InteractionCreate) (name string, req Request, ok bool) {
	if i.Type != discordgo.InteractionMessageComponent {
		return "", Request{}, false
	}

	name, ok = buttonCommands[i.MessageComponentData().CustomID]
	if !ok {
		return "", Request{}, false
	}

	return name, Request{GuildID: i.GuildID, ChannelID: i.ChannelID, UserID: interactionUser(i)}, true
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
