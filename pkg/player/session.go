package player

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/pkg/voice"
)

// DefaultListenerBuffer is the event buffer used by Subscribe callers
// that do not need a specific size
const DefaultListenerBuffer = 32

// errAbandoned is returned by playNext when a clear or dispose superseded
// the track while its stream was being opened
var errAbandoned = errors.New("playback abandoned")

// QueueResult reports where a queued track landed. Position 0 is the
// track playing now, 1 is next up and so on.
type QueueResult struct {
	Track     Track
	Position  int
	IsPlaying bool
}

// Session owns one channel's queue and its audio subscription
type Session struct {
	channel  voice.ChannelRef
	sub      *voice.Subscription
	source   Source
	selector FormatSelector
	logger   *zap.Logger

	// ctx bounds audio streams and is cancelled on dispose
	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes Queue, Next and auto-advance, including their I/O
	opMu sync.Mutex

	mu         sync.Mutex
	queue      []Track
	current    *Track
	generation uint64
	disposed   bool

	events *eventHub
	done   chan struct{}
}

// NewSession creates a session bound to the subscription and starts
// watching the player for finished tracks
func NewSession(channel voice.ChannelRef, sub *voice.Subscription, source Source, selector FormatSelector, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		channel:  channel,
		sub:      sub,
		source:   source,
		selector: selector,
		logger: logger.Named("session").With(
			zap.String("guildID", channel.GuildID),
			zap.String("channelID", channel.ChannelID),
		),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.events = newEventHub(func(ev Event) {
		s.logger.Warn("listener too slow, event dropped", zap.Stringer("event", ev.Kind))
	})

	go s.watch(sub.Player.StateChanges())

	return s
}

// Channel returns the voice channel the session serves
func (s *Session) Channel() voice.ChannelRef {
	return s.channel
}

// Done is closed once the session is disposed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe attaches a listener for session events
func (s *Session) Subscribe(buffer int) *Listener {
	return s.events.subscribe(buffer)
}

// Queue resolves url and appends it to the queue, starting playback when
// the session is idle
func (s *Session) Queue(ctx context.Context, url string) (QueueResult, error) {
	if s.isDisposed() {
		return QueueResult{}, ErrSessionClosed
	}

	if !s.source.Validate(url) {
		return QueueResult{}, ErrInvalidURL
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	log := s.logger.With(zap.String("url", url))

	info, err := s.source.Fetch(ctx, url)
	if err != nil {
		return QueueResult{}, errors.Wrapf(err, "fetch source info for %s", url)
	}

	track := Track{URL: url, DisplayName: info.DisplayName}
	if format, ok := s.selector.Select(info.Variants); ok {
		track.Format = &format
	} else {
		log.Warn("no audio-only format, using source default")
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		log.Info("session disposed during fetch, dropping track")
		return QueueResult{}, ErrSessionClosed
	}
	if s.containsLocked(url) {
		s.mu.Unlock()
		return QueueResult{}, ErrAlreadyQueued.WithContext(track.DisplayName)
	}

	s.queue = append(s.queue, track)
	idle := s.current == nil
	position := len(s.queue)
	s.mu.Unlock()

	log.Info("track queued", zap.String("name", track.DisplayName), zap.Bool("idle", idle))

	if !idle {
		return QueueResult{Track: track, Position: position}, nil
	}

	started, err := s.playNext()
	if err != nil {
		if errors.Is(err, errAbandoned) {
			return QueueResult{Track: track}, nil
		}
		return QueueResult{}, err
	}

	return QueueResult{Track: track, Position: 0, IsPlaying: started != nil && started.URL == url}, nil
}

// Next skips to the next queued track
func (s *Session) Next() (Track, error) {
	if s.isDisposed() {
		return Track{}, ErrSessionClosed
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	started, err := s.playNext()
	if err != nil {
		if errors.Is(err, errAbandoned) {
			return Track{}, ErrNoMoreSongs
		}
		return Track{}, err
	}
	if started == nil {
		return Track{}, ErrNoMoreSongs
	}

	return *started, nil
}

// Pause pauses the current track
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return ErrNothingPlaying
	}

	switch s.sub.Player.Status() {
	case voice.PlayerPlaying:
	case voice.PlayerPaused:
		return ErrAlreadyPaused
	default:
		return ErrNothingPlaying
	}
	if !s.sub.Player.Pause() {
		return ErrAlreadyPaused
	}

	return nil
}

// Resume continues a paused track. Resuming while playing is a no-op.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrSessionClosed
	}
	if s.current == nil {
		return ErrNothingPlaying
	}

	s.sub.Player.Unpause()
	return nil
}

// ClearQueue stops playback and empties the queue. It returns how many
// queued tracks were dropped.
func (s *Session) ClearQueue() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.queue)
	s.queue = nil
	s.current = nil
	s.generation++

	if !s.disposed {
		s.sub.Player.Stop()
	}

	s.logger.Info("queue cleared", zap.Int("tracks", cleared))
	return cleared
}

// SongQueue returns a snapshot of the pending tracks
func (s *Session) SongQueue() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Track, len(s.queue))
	copy(out, s.queue)
	return out
}

// NowPlaying returns the track in flight, if any
func (s *Session) NowPlaying() (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Track{}, false
	}
	return *s.current, true
}

// Status reports the transport player's state
func (s *Session) Status() voice.PlayerStatus {
	return s.sub.Player.Status()
}

// Dispose stops playback, releases the subscription and the listeners and
// destroys the connection. Safe to call multiple times.
func (s *Session) Dispose() {
	s.mu.Lock()
	s.queue = nil
	s.current = nil
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.generation++
	s.mu.Unlock()

	s.logger.Info("disposing session", zap.String("channel", s.channel.Name))

	s.cancel()
	s.events.emit(Event{Kind: EventClosed, Channel: s.channel, Timestamp: time.Now()})
	s.events.close()
	s.sub.Unsubscribe()

	if conn := s.sub.Connection; conn.Status() != voice.StatusDestroyed {
		if err := conn.Destroy(); err != nil {
			s.logger.Warn("failed to destroy voice connection", zap.Error(err))
		}
	}

	close(s.done)
}

// watch advances the queue each time the player finishes a track on its own
func (s *Session) watch(changes <-chan voice.StateChange) {
	for change := range changes {
		if !change.Ended() {
			continue
		}
		if change.Err != nil {
			s.logger.Warn("track ended with error", zap.Error(change.Err))
		}

		s.advance()
	}
}

// advance starts the next queued track after a natural end, or emits
// EventFinished when there is none. It never reports errors to the user.
func (s *Session) advance() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	cleared := s.disposed || s.current == nil
	s.mu.Unlock()

	// A clear or dispose landed between the end and now
	if cleared {
		return
	}
	// Someone already started another track since the end was reported
	if s.sub.Player.Status() != voice.PlayerIdle {
		return
	}

	for {
		started, err := s.playNext()
		if err == nil && started != nil {
			return
		}
		if err == nil {
			break
		}
		if errors.Is(err, errAbandoned) || errors.Is(err, ErrSessionClosed) {
			return
		}

		s.logger.Error("failed to start next track, skipping", zap.Error(err))
	}

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	s.logger.Info("queue finished")
	s.events.emit(Event{Kind: EventFinished, Channel: s.channel, Timestamp: time.Now()})
}

// playNext pops the queue head and starts it. It returns nil when the
// queue is empty. The caller must hold opMu.
func (s *Session) playNext() (*Track, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil, nil
	}

	track := s.queue[0]
	s.queue = s.queue[1:]
	s.current = &track
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	resource, err := s.source.Open(s.ctx, track)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		if resource != nil {
			resource.Close()
		}
		return nil, errAbandoned
	}
	if err != nil {
		s.current = nil
		return nil, errors.Wrapf(err, "open stream for %s", track.URL)
	}
	if err := s.sub.Player.Play(resource); err != nil {
		s.current = nil
		return nil, errors.Wrapf(err, "play %s", track.URL)
	}

	s.logger.Info("now playing", zap.String("url", track.URL), zap.String("name", track.DisplayName))
	s.events.emit(Event{Kind: EventNextSong, Track: track, Channel: s.channel, Timestamp: time.Now()})

	return &track, nil
}

func (s *Session) containsLocked(url string) bool {
	if s.current != nil && s.current.URL == url {
		return true
	}
	for _, t := range s.queue {
		if t.URL == url {
			return true
		}
	}
	return false
}

// live reports whether the session is undisposed and its connection can
// still carry audio
func (s *Session) live() bool {
	if s.isDisposed() {
		return false
	}

	conn := s.sub.Connection
	select {
	case <-conn.Done():
		return false
	default:
	}
	return conn.Status().Alive()
}

func (s *Session) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
