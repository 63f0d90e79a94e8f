package voice

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const readyPollInterval = 100 * time.Millisecond

// DiscordGateway opens voice connections through a discordgo session
type DiscordGateway struct {
	session *discordgo.Session
	encode  EncodeConfig
	logger  *zap.Logger

	join  func(guildID, channelID string) (*discordgo.VoiceConnection, error)
	leave func(vc *discordgo.VoiceConnection) error

	mu    sync.Mutex
	conns map[string]*discordConnection
}

// NewDiscordGateway creates a new gateway for the given session
func NewDiscordGateway(session *discordgo.Session, encode EncodeConfig, logger *zap.Logger) *DiscordGateway {
	return &DiscordGateway{
		session: session,
		encode:  encode,
		logger:  logger.Named("gateway"),
		join: func(guildID, channelID string) (*discordgo.VoiceConnection, error) {
			return session.ChannelVoiceJoin(guildID, channelID, false, true)
		},
		leave: (*discordgo.VoiceConnection).Disconnect,
		conns: make(map[string]*discordConnection),
	}
}

// Existing returns the tracked live connection for the guild
func (g *DiscordGateway) Existing(guildID string) (Connection, bool) {
	g.mu.Lock()
	conn, ok := g.conns[guildID]
	g.mu.Unlock()

	if !ok || !conn.Status().Alive() {
		return nil, false
	}

	return conn, true
}

// Join asks Discord to move the bot into the channel
func (g *DiscordGateway) Join(ctx context.Context, ref ChannelRef) (Connection, error) {
	type joinResult struct {
		vc  *discordgo.VoiceConnection
		err error
	}

	results := make(chan joinResult, 1)
	go func() {
		vc, err := g.join(ref.GuildID, ref.ChannelID)
		results <- joinResult{vc: vc, err: err}
	}()

	var res joinResult
	select {
	case res = <-results:
	case <-ctx.Done():
		// ChannelVoiceJoin cannot be cancelled; drop the late connection
		go func() {
			if late := <-results; late.vc != nil {
				_ = g.leave(late.vc)
			}
		}()
		return nil, ctx.Err()
	}

	if res.err != nil {
		// discordgo registers the connection before the handshake can fail
		if res.vc != nil {
			if err := g.leave(res.vc); err != nil {
				g.logger.Debug("failed to leave after join error", zap.Error(err))
			}
		}
		return nil, errors.Wrapf(res.err, "join guild %s channel %s", ref.GuildID, ref.ChannelID)
	}

	conn := &discordConnection{
		gateway: g,
		ref:     ref,
		vc:      res.vc,
		logger:  g.logger.With(zap.String("guildID", ref.GuildID), zap.String("channelID", ref.ChannelID)),
		status:  StatusSignalling,
		done:    make(chan struct{}),
	}
	conn.removeHandler = g.session.AddHandler(conn.onVoiceStateUpdate)

	g.mu.Lock()
	previous := g.conns[ref.GuildID]
	g.conns[ref.GuildID] = conn
	g.mu.Unlock()

	if previous != nil {
		previous.markDisconnected()
	}

	return conn, nil
}

// handedOff reports whether a newer connection took over conn's voice link
func (g *DiscordGateway) handedOff(conn *discordConnection) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, ok := g.conns[conn.ref.GuildID]
	return ok && current != conn && current.vc == conn.vc
}

func (g *DiscordGateway) forget(conn *discordConnection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conns[conn.ref.GuildID] == conn {
		delete(g.conns, conn.ref.GuildID)
	}
}

// discordConnection wraps a discordgo voice connection with lifecycle tracking
type discordConnection struct {
	gateway *DiscordGateway
	ref     ChannelRef
	vc      *discordgo.VoiceConnection
	logger  *zap.Logger

	mu            sync.Mutex
	status        ConnectionStatus
	done          chan struct{}
	doneOnce      sync.Once
	removeHandler func()
}

func (c *discordConnection) Ref() ChannelRef {
	return c.ref
}

func (c *discordConnection) Status() ConnectionStatus {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	if !status.Alive() {
		return status
	}

	c.vc.RLock()
	ready := c.vc.Ready
	c.vc.RUnlock()

	if ready {
		return StatusReady
	}
	return StatusSignalling
}

// WaitReady polls the connection until it is ready
func (c *discordConnection) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		switch c.Status() {
		case StatusReady:
			return nil
		case StatusDisconnected, StatusDestroyed:
			return ErrConnectionClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrConnectionClosed
		case <-ticker.C:
		}
	}
}

func (c *discordConnection) Subscribe() (*Subscription, error) {
	if !c.Status().Alive() {
		return nil, errors.Wrap(ErrSubscriptionFailed, ErrConnectionClosed.Error())
	}

	return NewSubscription(c, newDCAPlayer(c.vc, c.gateway.encode, c.logger)), nil
}

func (c *discordConnection) Done() <-chan struct{} {
	return c.done
}

// Destroy leaves the channel. Safe to call multiple times.
func (c *discordConnection) Destroy() error {
	c.mu.Lock()
	previous := c.status
	if previous == StatusDestroyed {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusDestroyed
	c.mu.Unlock()

	c.release()

	if previous == StatusDisconnected && c.gateway.handedOff(c) {
		return nil
	}

	c.logger.Info("destroying voice connection")

	if err := c.gateway.leave(c.vc); err != nil {
		return errors.Wrap(err, "disconnect voice")
	}
	return nil
}

func (c *discordConnection) markDisconnected() {
	c.mu.Lock()
	if c.status == StatusDestroyed || c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = StatusDisconnected
	c.mu.Unlock()

	c.logger.Info("voice connection disconnected")
	c.release()
}

func (c *discordConnection) release() {
	c.doneOnce.Do(func() {
		if c.removeHandler != nil {
			c.removeHandler()
		}
		c.gateway.forget(c)
		close(c.done)
	})
}

// onVoiceStateUpdate treats the bot leaving or being moved out of the
// channel as a disconnection
func (c *discordConnection) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.GuildID != c.ref.GuildID {
		return
	}
	if s.State == nil || s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	if vs.ChannelID == c.ref.ChannelID {
		return
	}

	c.logger.Info("bot left voice channel", zap.String("newChannelID", vs.ChannelID))
	c.markDisconnected()
}
