package commands

import (
	"github.com/bwmarrin/discordgo"
)

// SlashCommandName is the root of the player slash commands
const SlashCommandName = "player"

// slashAliases maps slash subcommands to chat command names
var slashAliases = map[string]string{
	"queue":      "play",
	"play":       "resume",
	"pause":      "pause",
	"next":       "skip",
	"clear":      "clear",
	"list":       "list",
	"nowplaying": "nowplaying",
	"player":     PanelCommand,
	"leave":      "stop",
	"history":    "history",
}

// SlashCommand returns the /player command definition
func SlashCommand() *discordgo.ApplicationCommand {
	sub := func(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        name,
			Description: description,
			Options:     options,
		}
	}

	return &discordgo.ApplicationCommand{
		Name:        SlashCommandName,
		Description: "Music player",
		Options: []*discordgo.ApplicationCommandOption{
			sub("queue", "Add a song to the queue", &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "song",
				Description: "YouTube URL",
				Required:    true,
			}),
			sub("pause", "Pause playback"),
			sub("play", "Resume playback"),
			sub("next", "Play the next song"),
			sub("clear", "Stop and clear the queue"),
			sub("list", "Show queued songs"),
			sub("nowplaying", "Show the current song"),
			sub("player", "Post the player with buttons"),
			sub("leave", "Leave the voice channel"),
			sub("history", "Show recently played songs"),
		},
	}
}

// SlashRequest converts a /player interaction into a command name and
// request. ok is false for unknown subcommands.
func SlashRequest(i *discordgo.InteractionCreate) (name string, req Request, ok bool) {
	data := i.ApplicationCommandData()
	if data.Name != SlashCommandName || len(data.Options) == 0 {
		return "", Request{}, false
	}

	subcommand := data.Options[0]
	name, ok = slashAliases[subcommand.Name]
	if !ok {
		return "", Request{}, false
	}

	req = Request{GuildID: i.GuildID, ChannelID: i.ChannelID, UserID: interactionUser(i)}

	for _, opt := range subcommand.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			req.Args = append(req.Args, opt.StringValue())
		}
	}

	return name, req, true
}
