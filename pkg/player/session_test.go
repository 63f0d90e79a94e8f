package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Kolega/pkg/logging"
	"github.com/latoulicious/Kolega/pkg/voice"
	"github.com/latoulicious/Kolega/pkg/voice/voicetest"
)

const (
	songA = "https://youtu.be/aaaaaaaaaaa"
	songB = "https://youtu.be/bbbbbbbbbbb"
	songC = "https://youtu.be/ccccccccccc"
)

type sessionFixture struct {
	session *Session
	source  *fakeSource
	conn    *voicetest.Connection
	player  *voicetest.Player
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	ref := voice.ChannelRef{GuildID: "guild", ChannelID: "channel", Name: "General"}
	conn := voicetest.NewConnection(ref)
	sub, err := conn.Subscribe()
	require.NoError(t, err)

	source := newFakeSource()
	session := NewSession(ref, sub, source, NewFormatSelector(), logging.Nop())
	t.Cleanup(session.Dispose)

	return &sessionFixture{
		session: session,
		source:  source,
		conn:    conn,
		player:  conn.Player(),
	}
}

func nextEvent(t *testing.T, l *Listener) Event {
	t.Helper()

	select {
	case ev, ok := <-l.C:
		require.True(t, ok, "listener closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertNoEvent(t *testing.T, l *Listener) {
	t.Helper()

	select {
	case ev, ok := <-l.C:
		if ok {
			t.Fatalf("unexpected %s event", ev.Kind)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_QueuePositions(t *testing.T) {
	pairs := [][2]string{
		{songA, songB},
		{songB, songA},
		{songA, songC},
	}

	for _, pair := range pairs {
		t.Run(pair[0]+"+"+pair[1], func(t *testing.T) {
			f := newSessionFixture(t)
			ctx := context.Background()

			first, err := f.session.Queue(ctx, pair[0])
			require.NoError(t, err)
			assert.True(t, first.IsPlaying)
			assert.Equal(t, 0, first.Position)

			second, err := f.session.Queue(ctx, pair[1])
			require.NoError(t, err)
			assert.False(t, second.IsPlaying)
			assert.Equal(t, 1, second.Position)

			assert.Equal(t, []string{pair[0]}, f.player.Played())
			require.Len(t, f.session.SongQueue(), 1)
			assert.Equal(t, pair[1], f.session.SongQueue()[0].URL)
		})
	}
}

func TestSession_QueueSelectsFormat(t *testing.T) {
	f := newSessionFixture(t)

	res, err := f.session.Queue(context.Background(), songA)
	require.NoError(t, err)

	require.NotNil(t, res.Track.Format)
	assert.Equal(t, 251, res.Track.Format.Itag)
	assert.Equal(t, "song aaaaaaaaaaa", res.Track.DisplayName)
}

func TestSession_QueueRejectsDuplicates(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.session.Queue(ctx, songA)
	require.NoError(t, err)
	_, err = f.session.Queue(ctx, songB)
	require.NoError(t, err)

	before := len(f.session.SongQueue())

	_, err = f.session.Queue(ctx, songB)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Len(t, f.session.SongQueue(), before)

	// the playing track counts as queued too
	_, err = f.session.Queue(ctx, songA)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Len(t, f.session.SongQueue(), before)
}

func TestSession_QueueInvalidURL(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.session.Queue(context.Background(), "https://example.com/video")

	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Equal(t, 0, f.source.Fetches())
	assert.Empty(t, f.player.Played())
}

func TestSession_QueueFetchErrorIsNotUserFacing(t *testing.T) {
	f := newSessionFixture(t)
	f.source.fetchErr = errors.New("upstream 500")

	_, err := f.session.Queue(context.Background(), songA)

	require.Error(t, err)
	_, ok := AsUserError(err)
	assert.False(t, ok)
	assert.Empty(t, f.session.SongQueue())
}

func TestSession_ConcurrentQueueSameURL(t *testing.T) {
	f := newSessionFixture(t)
	f.source.block = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.session.Queue(context.Background(), songA)
		}(i)
	}

	<-f.source.entered
	close(f.source.block)
	wg.Wait()

	duplicates := 0
	for _, err := range errs {
		if errors.Is(err, ErrAlreadyQueued) {
			duplicates++
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 1, duplicates)
	assert.Equal(t, []string{songA}, f.player.Played())
}

func TestSession_AutoAdvance(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	events := f.session.Subscribe(DefaultListenerBuffer)

	_, err := f.session.Queue(ctx, songA)
	require.NoError(t, err)
	_, err = f.session.Queue(ctx, songB)
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, EventNextSong, ev.Kind)
	assert.Equal(t, songA, ev.Track.URL)

	f.player.Finish()

	ev = nextEvent(t, events)
	assert.Equal(t, EventNextSong, ev.Kind)
	assert.Equal(t, songB, ev.Track.URL)
	assertNoEvent(t, events)

	current, ok := f.session.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, songB, current.URL)
	assert.Empty(t, f.session.SongQueue())
	assert.Equal(t, []string{songA, songB}, f.player.Played())
}

func TestSession_AutoAdvanceOnEmptyQueueFinishes(t *testing.T) {
	f := newSessionFixture(t)
	events := f.session.Subscribe(DefaultListenerBuffer)

	_, err := f.session.Queue(context.Background(), songA)
	require.NoError(t, err)
	assert.Equal(t, EventNextSong, nextEvent(t, events).Kind)

	f.player.Finish()

	assert.Equal(t, EventFinished, nextEvent(t, events).Kind)
	assertNoEvent(t, events)

	_, ok := f.session.NowPlaying()
	assert.False(t, ok)
}

func TestSession_AutoAdvanceSkipsBrokenTrack(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	events := f.session.Subscribe(DefaultListenerBuffer)

	for _, url := range []string{songA, songB, songC} {
		_, err := f.session.Queue(ctx, url)
		require.NoError(t, err)
	}
	assert.Equal(t, songA, nextEvent(t, events).Track.URL)

	f.source.FailOpen(songB)
	f.player.Finish()

	ev := nextEvent(t, events)
	assert.Equal(t, EventNextSong, ev.Kind)
	assert.Equal(t, songC, ev.Track.URL)
	assert.Equal(t, []string{songA, songC}, f.player.Played())
}

func TestSession_QueueAfterFinishStartsPlayback(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	events := f.session.Subscribe(DefaultListenerBuffer)

	_, err := f.session.Queue(ctx, songA)
	require.NoError(t, err)
	nextEvent(t, events)

	f.player.Finish()
	require.Equal(t, EventFinished, nextEvent(t, events).Kind)

	res, err := f.session.Queue(ctx, songB)
	require.NoError(t, err)
	assert.True(t, res.IsPlaying)
	assert.Equal(t, 0, res.Position)
}

func TestSession_Next(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.session.Queue(ctx, songA)
	require.NoError(t, err)

	_, err = f.session.Next()
	assert.ErrorIs(t, err, ErrNoMoreSongs)

	current, ok := f.session.NowPlaying()
	require.True(t, ok, "skip on an empty queue keeps the current track")
	assert.Equal(t, songA, current.URL)

	_, err = f.session.Queue(ctx, songB)
	require.NoError(t, err)

	track, err := f.session.Next()
	require.NoError(t, err)
	assert.Equal(t, songB, track.URL)
	assert.Equal(t, []string{songA, songB}, f.player.Played())
}

func TestSession_PauseResume(t *testing.T) {
	f := newSessionFixture(t)

	assert.ErrorIs(t, f.session.Pause(), ErrNothingPlaying)
	assert.ErrorIs(t, f.session.Resume(), ErrNothingPlaying)

	_, err := f.session.Queue(context.Background(), songA)
	require.NoError(t, err)

	require.NoError(t, f.session.Pause())
	assert.Equal(t, voice.PlayerPaused, f.player.Status())
	assert.ErrorIs(t, f.session.Pause(), ErrAlreadyPaused)

	require.NoError(t, f.session.Resume())
	assert.Equal(t, voice.PlayerPlaying, f.player.Status())
	assert.NoError(t, f.session.Resume())
}

func TestSession_PauseRequiresPlayback(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.session.Queue(context.Background(), songA)
	require.NoError(t, err)

	// hold off auto-advance so the ended track stays current
	f.session.opMu.Lock()
	f.player.Finish()

	assert.ErrorIs(t, f.session.Pause(), ErrNothingPlaying)
	f.session.opMu.Unlock()
}

func TestSession_ClearAfterEndDoesNotFinish(t *testing.T) {
	f := newSessionFixture(t)
	events := f.session.Subscribe(DefaultListenerBuffer)

	_, err := f.session.Queue(context.Background(), songA)
	require.NoError(t, err)
	assert.Equal(t, EventNextSong, nextEvent(t, events).Kind)

	f.session.opMu.Lock()
	f.player.Finish()
	f.session.ClearQueue()
	f.session.opMu.Unlock()

	assertNoEvent(t, events)
	assert.Len(t, f.player.Played(), 1)
}

func TestSession_ClearQueue(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	events := f.session.Subscribe(DefaultListenerBuffer)

	for _, url := range []string{songA, songB, songC} {
		_, err := f.session.Queue(ctx, url)
		require.NoError(t, err)
	}
	nextEvent(t, events)

	assert.Equal(t, 2, f.session.ClearQueue())
	assert.Empty(t, f.session.SongQueue())
	assert.Equal(t, 1, f.player.Stops())

	_, ok := f.session.NowPlaying()
	assert.False(t, ok)

	// stopping is not a natural end
	assertNoEvent(t, events)
}

func TestSession_DisposeIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	events := f.session.Subscribe(DefaultListenerBuffer)

	_, err := f.session.Queue(ctx, songA)
	require.NoError(t, err)
	_, err = f.session.Queue(ctx, songB)
	require.NoError(t, err)
	nextEvent(t, events)

	f.session.Dispose()
	assert.Empty(t, f.session.SongQueue())

	f.session.Dispose()
	assert.Empty(t, f.session.SongQueue())

	assert.Equal(t, 1, f.conn.Destroys())
	assert.True(t, f.player.Closed())

	assert.Equal(t, EventClosed, nextEvent(t, events).Kind)
	_, open := <-events.C
	assert.False(t, open)

	select {
	case <-f.session.Done():
	default:
		t.Fatal("done not closed")
	}

	_, err = f.session.Queue(ctx, songC)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_DisposeDuringFetchDropsTrack(t *testing.T) {
	f := newSessionFixture(t)
	f.source.block = make(chan struct{})

	result := make(chan error, 1)
	go func() {
		_, err := f.session.Queue(context.Background(), songA)
		result <- err
	}()

	<-f.source.entered
	f.session.Dispose()
	close(f.source.block)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("queue did not return")
	}

	assert.Empty(t, f.session.SongQueue())
	assert.Empty(t, f.player.Played())
}

func TestSession_SubscribeAfterDispose(t *testing.T) {
	f := newSessionFixture(t)
	f.session.Dispose()

	l := f.session.Subscribe(1)

	_, open := <-l.C
	assert.False(t, open)
}

func TestListener_Close(t *testing.T) {
	f := newSessionFixture(t)
	events := f.session.Subscribe(DefaultListenerBuffer)

	events.Close()
	events.Close()

	_, err := f.session.Queue(context.Background(), songA)
	require.NoError(t, err)

	_, open := <-events.C
	assert.False(t, open)
}
