package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/Kolega/pkg/player"
	"github.com/latoulicious/Kolega/pkg/voice"
)

// StateLocator finds users' voice channels in the gateway state cache
type StateLocator struct {
	State *discordgo.State
}

func (l StateLocator) UserVoiceChannel(guildID, userID string) (voice.ChannelRef, error) {
	vs, err := l.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return voice.ChannelRef{}, player.ErrNotInVoiceChannel
	}

	ref := voice.ChannelRef{GuildID: guildID, ChannelID: vs.ChannelID}
	if ch, err := l.State.Channel(vs.ChannelID); err == nil {
		ref.Name = ch.Name
	}
	return ref, nil
}
