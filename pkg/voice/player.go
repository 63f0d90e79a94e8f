package voice

import (
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const stateBufferSize = 64

// EncodeConfig contains configuration for Opus encoding
type EncodeConfig struct {
	Bitrate        int // kbps
	Volume         int // 256 is unity gain
	BufferedFrames int
}

func (c EncodeConfig) options() *dca.EncodeOptions {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Application = dca.AudioApplicationAudio

	if c.Bitrate > 0 {
		opts.Bitrate = c.Bitrate
	}
	if c.Volume > 0 {
		opts.Volume = c.Volume
	}
	if c.BufferedFrames > 0 {
		opts.BufferedFrames = c.BufferedFrames
	}

	return &opts
}

// audioStream is one resource being encoded and sent
type audioStream interface {
	SetPaused(paused bool)
	Cleanup()
}

// streamer starts sending a resource. The end of the stream is reported
// on done.
type streamer interface {
	Stream(resource io.ReadCloser, done chan error) (audioStream, error)
}

// speaker toggles the speaking indicator of a voice connection
type speaker interface {
	Speaking(speaking bool) error
}

// dcaStreamer encodes with ffmpeg and streams Opus frames into a discordgo
// voice connection
type dcaStreamer struct {
	vc      *discordgo.VoiceConnection
	options *dca.EncodeOptions
}

func (d dcaStreamer) Stream(resource io.ReadCloser, done chan error) (audioStream, error) {
	encode, err := dca.EncodeMem(resource, d.options)
	if err != nil {
		return nil, err
	}

	return &dcaStream{encode: encode, stream: dca.NewStream(encode, d.vc, done)}, nil
}

type dcaStream struct {
	encode *dca.EncodeSession
	stream *dca.StreamingSession
}

func (s *dcaStream) SetPaused(paused bool) {
	s.stream.SetPaused(paused)
}

func (s *dcaStream) Cleanup() {
	s.encode.Cleanup()
}

// playback is a single resource being streamed
type playback struct {
	source io.ReadCloser
	stream audioStream
	done   chan error
	halted chan struct{}
}

func (pb *playback) halt() {
	close(pb.halted)
	pb.stream.Cleanup()
	pb.source.Close()
}

// dcaPlayer plays one resource at a time and reports its state changes
type dcaPlayer struct {
	streamer streamer
	speaker  speaker
	logger   *zap.Logger

	mu      sync.Mutex
	current *playback
	status  PlayerStatus
	closed  bool
	changes chan StateChange
}

func newDCAPlayer(vc *discordgo.VoiceConnection, cfg EncodeConfig, logger *zap.Logger) *dcaPlayer {
	return newPlayer(dcaStreamer{vc: vc, options: cfg.options()}, vc, logger)
}

func newPlayer(st streamer, sp speaker, logger *zap.Logger) *dcaPlayer {
	return &dcaPlayer{
		streamer: st,
		speaker:  sp,
		logger:   logger.Named("player"),
		status:   PlayerIdle,
		changes:  make(chan StateChange, stateBufferSize),
	}
}

func (p *dcaPlayer) Play(resource io.ReadCloser) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		resource.Close()
		return ErrPlayerClosed
	}

	if p.current != nil {
		p.current.halt()
		p.current = nil
	}

	p.transition(PlayerBuffering, false, nil)

	done := make(chan error, 1)
	stream, err := p.streamer.Stream(resource, done)
	if err != nil {
		resource.Close()
		p.transition(PlayerIdle, true, err)
		return errors.Wrap(err, "start opus encoder")
	}

	if err := p.speaker.Speaking(true); err != nil {
		p.logger.Warn("failed to set speaking state", zap.Error(err))
	}

	pb := &playback{
		source: resource,
		stream: stream,
		done:   done,
		halted: make(chan struct{}),
	}
	p.current = pb
	p.transition(PlayerPlaying, false, nil)

	go p.wait(pb)

	return nil
}

// wait reports the natural end of pb unless it was halted first
func (p *dcaPlayer) wait(pb *playback) {
	var err error

	select {
	case err = <-pb.done:
	case <-pb.halted:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != pb {
		return
	}

	p.current = nil
	pb.halt()

	if err == io.EOF {
		err = nil
	}
	if err != nil {
		p.logger.Warn("stream ended with error", zap.Error(err))
	}

	if speakErr := p.speaker.Speaking(false); speakErr != nil {
		p.logger.Debug("failed to clear speaking state", zap.Error(speakErr))
	}

	p.transition(PlayerIdle, false, err)
}

func (p *dcaPlayer) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.status != PlayerPlaying {
		return false
	}

	p.current.stream.SetPaused(true)
	p.transition(PlayerPaused, false, nil)
	return true
}

func (p *dcaPlayer) Unpause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.status != PlayerPaused {
		return false
	}

	p.current.stream.SetPaused(false)
	p.transition(PlayerPlaying, false, nil)
	return true
}

func (p *dcaPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}

	p.current.halt()
	p.current = nil

	if err := p.speaker.Speaking(false); err != nil {
		p.logger.Debug("failed to clear speaking state", zap.Error(err))
	}

	p.transition(PlayerIdle, true, nil)
}

func (p *dcaPlayer) Status() PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *dcaPlayer) StateChanges() <-chan StateChange {
	return p.changes
}

func (p *dcaPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.current != nil {
		p.current.halt()
		p.current = nil
	}

	close(p.changes)
}

// transition must be called with p.mu held
func (p *dcaPlayer) transition(to PlayerStatus, stopped bool, err error) {
	if p.status == to {
		return
	}

	change := StateChange{
		From:      p.status,
		To:        to,
		Stopped:   stopped,
		Err:       err,
		Timestamp: time.Now(),
	}
	p.status = to

	if p.closed {
		return
	}

	select {
	case p.changes <- change:
	default:
		p.logger.Warn("state change dropped",
			zap.Stringer("from", change.From),
			zap.Stringer("to", change.To))
	}
}
