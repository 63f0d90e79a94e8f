// Package voicetest provides in-memory voice transport fakes for tests.
package voicetest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/latoulicious/Kolega/pkg/voice"
)

// Player is a fake audio player that records what it was asked to play
type Player struct {
	mu      sync.Mutex
	status  voice.PlayerStatus
	played  []string
	stops   int
	closed  bool
	changes chan voice.StateChange
	PlayErr error
}

// NewPlayer creates an idle fake player
func NewPlayer() *Player {
	return &Player{
		status:  voice.PlayerIdle,
		changes: make(chan voice.StateChange, 64),
	}
}

func (p *Player) Play(resource io.ReadCloser) error {
	data, _ := io.ReadAll(resource)
	resource.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return voice.ErrPlayerClosed
	}
	if p.PlayErr != nil {
		return p.PlayErr
	}

	p.played = append(p.played, string(data))
	p.transition(voice.PlayerPlaying, false)
	return nil
}

func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != voice.PlayerPlaying {
		return false
	}
	p.transition(voice.PlayerPaused, false)
	return true
}

func (p *Player) Unpause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != voice.PlayerPaused {
		return false
	}
	p.transition(voice.PlayerPlaying, false)
	return true
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stops++
	p.transition(voice.PlayerIdle, true)
}

func (p *Player) Status() voice.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Player) StateChanges() <-chan voice.StateChange {
	return p.changes
}

func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.changes)
	}
}

// Finish simulates the current resource reaching its natural end
func (p *Player) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transition(voice.PlayerIdle, false)
}

// Played returns the contents of every resource played so far
func (p *Player) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

// Stops returns how many times Stop was called
func (p *Player) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// Closed reports whether Close was called
func (p *Player) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Player) transition(to voice.PlayerStatus, stopped bool) {
	if p.status == to || p.closed {
		p.status = to
		return
	}

	change := voice.StateChange{From: p.status, To: to, Stopped: stopped, Timestamp: time.Now()}
	p.status = to

	select {
	case p.changes <- change:
	default:
	}
}

// Connection is a fake voice connection
type Connection struct {
	ref voice.ChannelRef

	mu       sync.Mutex
	status   voice.ConnectionStatus
	done     chan struct{}
	doneOnce sync.Once
	destroys int
	player   *Player

	// ReadyErr is returned by WaitReady when set
	ReadyErr error
	// Hang makes WaitReady block until its context ends
	Hang bool
	// SubscribeErr is returned by Subscribe when set
	SubscribeErr error
}

// NewConnection creates a ready fake connection
func NewConnection(ref voice.ChannelRef) *Connection {
	return &Connection{
		ref:    ref,
		status: voice.StatusReady,
		done:   make(chan struct{}),
	}
}

func (c *Connection) Ref() voice.ChannelRef {
	return c.ref
}

func (c *Connection) Status() voice.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) WaitReady(ctx context.Context) error {
	if c.ReadyErr != nil {
		return c.ReadyErr
	}
	if c.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if !c.Status().Alive() {
		return voice.ErrConnectionClosed
	}
	return nil
}

func (c *Connection) Subscribe() (*voice.Subscription, error) {
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}

	p := NewPlayer()

	c.mu.Lock()
	c.player = p
	c.mu.Unlock()

	return voice.NewSubscription(c, p), nil
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Destroy() error {
	c.mu.Lock()
	c.destroys++
	c.status = voice.StatusDestroyed
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })
	return nil
}

// Disconnect simulates the remote side dropping the connection
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.status = voice.StatusDisconnected
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })
}

// Player returns the player created by the last Subscribe call
func (c *Connection) Player() *Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

// Destroys returns how many times Destroy was called
func (c *Connection) Destroys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroys
}

// Gateway is a fake gateway that hands out fake connections
type Gateway struct {
	mu    sync.Mutex
	conns map[string]*Connection
	joins int

	// JoinErr is returned by Join when set
	JoinErr error
	// Prepare is applied to each new connection before it is returned
	Prepare func(*Connection)
}

// NewGateway creates an empty fake gateway
func NewGateway() *Gateway {
	return &Gateway{conns: make(map[string]*Connection)}
}

func (g *Gateway) Existing(guildID string) (voice.Connection, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, ok := g.conns[guildID]
	if !ok || !conn.Status().Alive() {
		return nil, false
	}
	return conn, true
}

func (g *Gateway) Join(ctx context.Context, ref voice.ChannelRef) (voice.Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.joins++
	if g.JoinErr != nil {
		return nil, g.JoinErr
	}

	conn := NewConnection(ref)
	if g.Prepare != nil {
		g.Prepare(conn)
	}
	g.conns[ref.GuildID] = conn
	return conn, nil
}

// Connection returns the most recent connection for the guild
func (g *Gateway) Connection(guildID string) *Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[guildID]
}

// Joins returns how many times Join was called
func (g *Gateway) Joins() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.joins
}
