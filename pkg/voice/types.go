package voice

import "time"

// ChannelRef identifies the voice channel a connection is bound to
type ChannelRef struct {
	GuildID   string
	ChannelID string
	Name      string
}

// Key returns the registry key for the channel. Discord allows a single
// voice connection per guild, so the guild is the unit of ownership.
func (r ChannelRef) Key() string {
	return r.GuildID
}

// ConnectionStatus represents the lifecycle state of a voice connection
type ConnectionStatus int

const (
	StatusSignalling ConnectionStatus = iota
	StatusReady
	StatusDisconnected
	StatusDestroyed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusSignalling:
		return "signalling"
	case StatusReady:
		return "ready"
	case StatusDisconnected:
		return "disconnected"
	case StatusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Alive reports whether the connection can still carry audio
func (s ConnectionStatus) Alive() bool {
	return s == StatusSignalling || s == StatusReady
}

// PlayerStatus represents the current state of an audio player
type PlayerStatus int

const (
	PlayerIdle PlayerStatus = iota
	PlayerBuffering
	PlayerPlaying
	PlayerPaused
)

func (s PlayerStatus) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerBuffering:
		return "buffering"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateChange represents a player state transition
type StateChange struct {
	From      PlayerStatus
	To        PlayerStatus
	Stopped   bool  // set when the transition was caused by an explicit Stop
	Err       error // non-nil when the resource ended with a read or encode error
	Timestamp time.Time
}

// Ended reports whether the change is a resource finishing on its own,
// as opposed to being stopped or replaced.
func (c StateChange) Ended() bool {
	return c.From == PlayerPlaying && c.To == PlayerIdle && !c.Stopped
}
