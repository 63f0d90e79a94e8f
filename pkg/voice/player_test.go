package voice

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Kolega/pkg/logging"
)

type fakeStream struct {
	mu       sync.Mutex
	paused   bool
	cleanups int
}

func (s *fakeStream) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *fakeStream) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
}

func (s *fakeStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeStream) Cleanups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

type fakeStreamer struct {
	mu      sync.Mutex
	streams []*fakeStream
	dones   []chan error
	err     error
}

func (f *fakeStreamer) Stream(resource io.ReadCloser, done chan error) (audioStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	stream := &fakeStream{}
	f.streams = append(f.streams, stream)
	f.dones = append(f.dones, done)
	return stream, nil
}

// finish reports the end of the i-th stream
func (f *fakeStreamer) finish(i int, err error) {
	f.mu.Lock()
	done := f.dones[i]
	f.mu.Unlock()
	done <- err
}

func (f *fakeStreamer) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

type fakeSpeaker struct{}

func (fakeSpeaker) Speaking(bool) error { return nil }

type trackedResource struct {
	io.Reader

	mu     sync.Mutex
	closed bool
}

func newResource(data string) *trackedResource {
	return &trackedResource{Reader: strings.NewReader(data)}
}

func (r *trackedResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *trackedResource) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newTestPlayer() (*dcaPlayer, *fakeStreamer) {
	streamer := &fakeStreamer{}
	return newPlayer(streamer, fakeSpeaker{}, logging.Nop()), streamer
}

func nextChange(t *testing.T, p *dcaPlayer) StateChange {
	t.Helper()

	select {
	case change, ok := <-p.StateChanges():
		require.True(t, ok, "state changes closed")
		return change
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state change")
	}
	return StateChange{}
}

func assertNoChange(t *testing.T, p *dcaPlayer) {
	t.Helper()

	select {
	case change, ok := <-p.StateChanges():
		if ok {
			t.Fatalf("unexpected change %s -> %s", change.From, change.To)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func requireStarted(t *testing.T, p *dcaPlayer) {
	t.Helper()

	change := nextChange(t, p)
	require.Equal(t, PlayerBuffering, change.To)
	change = nextChange(t, p)
	require.Equal(t, PlayerPlaying, change.To)
}

func TestPlayer_NaturalEndIsReported(t *testing.T) {
	tests := []struct {
		name    string
		reason  error
		wantErr bool
	}{
		{name: "eof", reason: io.EOF},
		{name: "clean", reason: nil},
		{name: "read error", reason: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, streamer := newTestPlayer()
			resource := newResource("song")

			require.NoError(t, p.Play(resource))
			requireStarted(t, p)

			streamer.finish(0, tt.reason)

			change := nextChange(t, p)
			assert.True(t, change.Ended())
			assert.False(t, change.Stopped)
			assert.Equal(t, tt.wantErr, change.Err != nil)
			assert.Equal(t, PlayerIdle, p.Status())
			assert.Equal(t, 1, streamer.stream(0).Cleanups())
			assert.True(t, resource.Closed())
		})
	}
}

func TestPlayer_StopIsNotAnEnd(t *testing.T) {
	p, streamer := newTestPlayer()
	resource := newResource("song")

	require.NoError(t, p.Play(resource))
	requireStarted(t, p)

	p.Stop()

	change := nextChange(t, p)
	assert.True(t, change.Stopped)
	assert.False(t, change.Ended())
	assert.True(t, resource.Closed())

	// the stream reporting its end after a stop is ignored
	streamer.finish(0, io.EOF)
	assertNoChange(t, p)
	assert.Equal(t, PlayerIdle, p.Status())
}

func TestPlayer_StopWhenIdle(t *testing.T) {
	p, _ := newTestPlayer()

	p.Stop()

	assertNoChange(t, p)
}

func TestPlayer_PlayReplacesWithoutEnding(t *testing.T) {
	p, streamer := newTestPlayer()
	first := newResource("first")

	require.NoError(t, p.Play(first))
	requireStarted(t, p)

	require.NoError(t, p.Play(newResource("second")))

	for _, want := range []PlayerStatus{PlayerBuffering, PlayerPlaying} {
		change := nextChange(t, p)
		assert.Equal(t, want, change.To)
		assert.False(t, change.Ended())
	}

	assert.True(t, first.Closed())
	assert.Equal(t, 1, streamer.stream(0).Cleanups())

	streamer.finish(0, io.EOF)
	assertNoChange(t, p)
	assert.Equal(t, PlayerPlaying, p.Status())
}

func TestPlayer_PauseUnpause(t *testing.T) {
	p, streamer := newTestPlayer()

	assert.False(t, p.Pause(), "pause while idle")
	assert.False(t, p.Unpause(), "unpause while idle")

	require.NoError(t, p.Play(newResource("song")))
	requireStarted(t, p)
	stream := streamer.stream(0)

	assert.False(t, p.Unpause(), "unpause while playing")

	assert.True(t, p.Pause())
	assert.True(t, stream.Paused())
	assert.Equal(t, PlayerPaused, p.Status())
	assert.False(t, p.Pause(), "second pause")

	assert.True(t, p.Unpause())
	assert.False(t, stream.Paused())
	assert.Equal(t, PlayerPlaying, p.Status())
}

func TestPlayer_StreamFailure(t *testing.T) {
	p, streamer := newTestPlayer()
	streamer.err = errors.New("ffmpeg not found")
	resource := newResource("song")

	err := p.Play(resource)

	require.Error(t, err)
	assert.True(t, resource.Closed())
	assert.Equal(t, PlayerIdle, p.Status())

	assert.Equal(t, PlayerBuffering, nextChange(t, p).To)
	change := nextChange(t, p)
	assert.True(t, change.Stopped)
	assert.Error(t, change.Err)
}

func TestPlayer_Close(t *testing.T) {
	p, streamer := newTestPlayer()

	require.NoError(t, p.Play(newResource("song")))
	requireStarted(t, p)

	p.Close()
	p.Close()

	_, ok := <-p.StateChanges()
	assert.False(t, ok)
	assert.Equal(t, 1, streamer.stream(0).Cleanups())

	resource := newResource("late")
	assert.ErrorIs(t, p.Play(resource), ErrPlayerClosed)
	assert.True(t, resource.Closed())
}
