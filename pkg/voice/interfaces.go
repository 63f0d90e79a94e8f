package voice

import (
	"context"
	"io"
	"sync"
)

// Gateway opens voice connections on the underlying platform
type Gateway interface {
	// Existing returns the live connection for a guild, if any.
	Existing(guildID string) (Connection, bool)
	// Join starts establishing a connection. The returned connection may
	// not be ready yet.
	Join(ctx context.Context, ref ChannelRef) (Connection, error)
}

// Connection is a real-time voice connection to one channel
type Connection interface {
	Ref() ChannelRef
	Status() ConnectionStatus
	WaitReady(ctx context.Context) error
	Subscribe() (*Subscription, error)
	// Done is closed once the connection is disconnected or destroyed.
	Done() <-chan struct{}
	Destroy() error
}

// Player plays one resource at a time into a connection
type Player interface {
	// Play starts the resource, replacing whatever is currently playing.
	Play(resource io.ReadCloser) error
	Pause() bool
	Unpause() bool
	Stop()
	Status() PlayerStatus
	StateChanges() <-chan StateChange
	Close()
}

// Subscription binds a player to a connection
type Subscription struct {
	Player     Player
	Connection Connection

	once sync.Once
}

// NewSubscription creates a new subscription handle
func NewSubscription(conn Connection, player Player) *Subscription {
	return &Subscription{
		Player:     player,
		Connection: conn,
	}
}

// Unsubscribe stops and releases the player. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.Player.Stop()
		s.Player.Close()
	})
}
