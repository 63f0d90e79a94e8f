package player

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/latoulicious/Kolega/pkg/voice"
)

// ConnectionBroker acquires voice connections
type ConnectionBroker interface {
	Acquire(ctx context.Context, ref voice.ChannelRef) (voice.Connection, error)
}

// Registry maps channels to their live sessions. It is the only component
// that creates or removes sessions.
type Registry struct {
	broker   ConnectionBroker
	source   Source
	selector FormatSelector
	logger   *zap.Logger

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
	hooks    []func(*Session)
}

// NewRegistry creates an empty registry
func NewRegistry(broker ConnectionBroker, source Source, selector FormatSelector, logger *zap.Logger) *Registry {
	return &Registry{
		broker:   broker,
		source:   source,
		selector: selector,
		logger:   logger.Named("registry"),
		sessions: make(map[string]*Session),
	}
}

// OnCreate registers a hook that runs for every new session before it is
// returned to the caller
func (r *Registry) OnCreate(hook func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Get returns the live session for key. A session whose connection has
// already dropped is disposed and forgotten here rather than handed out.
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	if s.live() {
		r.mu.Unlock()
		return s, true
	}
	delete(r.sessions, key)
	r.mu.Unlock()

	r.logger.Info("dropping session with dead connection", zap.String("guildID", key))
	s.Dispose()
	return nil, false
}

// GetOrCreate returns the session for the channel's key, creating it and
// its voice connection when none exists. Concurrent calls for the same key
// share one creation.
func (r *Registry) GetOrCreate(ctx context.Context, ref voice.ChannelRef) (*Session, error) {
	key := ref.Key()

	if s, ok := r.Get(key); ok {
		r.logger.Debug("reusing session", zap.String("guildID", key))
		return s, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if s, ok := r.Get(key); ok {
			return s, nil
		}
		return r.create(ctx, ref)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Session), nil
}

func (r *Registry) create(ctx context.Context, ref voice.ChannelRef) (*Session, error) {
	log := r.logger.With(zap.String("guildID", ref.GuildID), zap.String("channelID", ref.ChannelID))

	conn, err := r.broker.Acquire(ctx, ref)
	if err != nil {
		return nil, err
	}

	sub, err := conn.Subscribe()
	if err != nil {
		if destroyErr := conn.Destroy(); destroyErr != nil {
			log.Warn("failed to destroy voice connection", zap.Error(destroyErr))
		}
		return nil, errors.Wrap(err, "subscribe to voice connection")
	}

	session := NewSession(ref, sub, r.source, r.selector, r.logger)

	r.mu.Lock()
	r.sessions[ref.Key()] = session
	hooks := make([]func(*Session), len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(session)
	}

	go r.watch(ref.Key(), session, conn)

	log.Info("session created", zap.String("channel", ref.Name))
	return session, nil
}

// watch disposes and removes the session once its connection drops
func (r *Registry) watch(key string, session *Session, conn voice.Connection) {
	select {
	case <-conn.Done():
		r.logger.Info("voice connection dropped, disposing session", zap.String("guildID", key))
		session.Dispose()
	case <-session.Done():
	}

	r.forget(key, session)
}

func (r *Registry) forget(key string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[key] == session {
		delete(r.sessions, key)
	}
}

// Remove disposes and removes the session for key. It reports whether a
// session existed.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	session, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	session.Dispose()
	return true
}

// Len returns the number of tracked sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close disposes every session
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for key, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
}
