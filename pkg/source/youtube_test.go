package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Kolega/pkg/logging"
	"github.com/latoulicious/Kolega/pkg/player"
)

type fakeClient struct {
	video    *youtube.Video
	err      error
	streamed *youtube.Format
}

func (f *fakeClient) GetVideoContext(ctx context.Context, id string) (*youtube.Video, error) {
	return f.video, f.err
}

func (f *fakeClient) GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	f.streamed = format
	return io.NopCloser(strings.NewReader("audio")), 5, nil
}

func testVideo() *youtube.Video {
	return &youtube.Video{
		ID:    "dQw4w9WgXcQ",
		Title: "Never Gonna Give You Up",
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, AudioChannels: 2, AudioQuality: "AUDIO_QUALITY_LOW", ContentLength: 9000},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2, AudioQuality: "AUDIO_QUALITY_MEDIUM", ContentLength: 3400, Bitrate: 130000},
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, AudioChannels: 2, AudioQuality: "AUDIO_QUALITY_MEDIUM", ContentLength: 3300, Bitrate: 140000},
		},
	}
}

func newTestSource(client *fakeClient) *YouTube {
	y := NewYouTube(logging.Nop())
	y.client = client
	return y
}

func TestYouTube_Validate(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", true},
		{"https://vimeo.com/123456", false},
		{"https://www.youtube.com/", false},
		{"ftp://youtu.be/dQw4w9WgXcQ", false},
		{"never gonna give you up", false},
		{"", false},
	}

	y := newTestSource(&fakeClient{})
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, y.Validate(tt.url))
		})
	}
}

func TestYouTube_Fetch(t *testing.T) {
	y := newTestSource(&fakeClient{video: testVideo()})

	info, err := y.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, "Never Gonna Give You Up", info.DisplayName)
	require.Len(t, info.Variants, 3)
	assert.Equal(t, player.FormatInfo{
		Itag:          251,
		MimeType:      `audio/webm; codecs="opus"`,
		AudioQuality:  "AUDIO_QUALITY_MEDIUM",
		ContentLength: 3300,
		Bitrate:       140000,
	}, info.Variants[2])

	selected, ok := player.NewFormatSelector().Select(info.Variants)
	require.True(t, ok)
	assert.Equal(t, 251, selected.Itag)
}

func TestYouTube_FetchError(t *testing.T) {
	y := newTestSource(&fakeClient{err: errors.New("video unavailable")})

	_, err := y.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")

	assert.ErrorContains(t, err, "video unavailable")
}

func TestYouTube_Open(t *testing.T) {
	tests := []struct {
		name     string
		format   *player.FormatInfo
		wantItag int
	}{
		{name: "selected format", format: &player.FormatInfo{Itag: 140}, wantItag: 140},
		{name: "no selection uses first audio format", format: nil, wantItag: 140},
		{name: "stale selection falls back", format: &player.FormatInfo{Itag: 999}, wantItag: 140},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{video: testVideo()}
			y := newTestSource(client)

			stream, err := y.Open(context.Background(), player.Track{URL: "https://youtu.be/dQw4w9WgXcQ", Format: tt.format})
			require.NoError(t, err)
			defer stream.Close()

			require.NotNil(t, client.streamed)
			assert.Equal(t, tt.wantItag, client.streamed.ItagNo)
		})
	}
}

func TestPickFormat_NoAudio(t *testing.T) {
	_, err := pickFormat(youtube.FormatList{{ItagNo: 137, MimeType: "video/mp4"}}, nil)

	assert.ErrorIs(t, err, ErrNoAudioFormat)
}
