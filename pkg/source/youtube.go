// Package source resolves user supplied links into track metadata and
// audio streams.
package source

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/pkg/player"
)

// ErrNoAudioFormat is returned when a video has no playable audio stream
var ErrNoAudioFormat = errors.New("no audio format available")

var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

type videoClient interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// YouTube is a player.Source backed by the YouTube player API
type YouTube struct {
	client videoClient
	logger *zap.Logger
}

var _ player.Source = (*YouTube)(nil)

// NewYouTube creates a YouTube source with a default client
func NewYouTube(logger *zap.Logger) *YouTube {
	return &YouTube{
		client: &youtube.Client{},
		logger: logger.Named("youtube"),
	}
}

// Validate reports whether raw is a YouTube video link
func (y *YouTube) Validate(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if !allowedHosts[strings.ToLower(u.Hostname())] {
		return false
	}

	_, err = youtube.ExtractVideoID(raw)
	return err == nil
}

// Fetch loads the video title and its stream variants
func (y *YouTube) Fetch(ctx context.Context, raw string) (*player.SourceInfo, error) {
	video, err := y.client.GetVideoContext(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(err, "get video")
	}

	y.logger.Debug("video fetched",
		zap.String("id", video.ID),
		zap.String("title", video.Title),
		zap.Int("formats", len(video.Formats)),
	)

	return &player.SourceInfo{
		DisplayName: video.Title,
		Variants:    formatInfos(video.Formats),
	}, nil
}

// Open streams the track's selected format. Stream URLs expire, so the
// video is resolved again.
func (y *YouTube) Open(ctx context.Context, track player.Track) (io.ReadCloser, error) {
	video, err := y.client.GetVideoContext(ctx, track.URL)
	if err != nil {
		return nil, errors.Wrap(err, "get video")
	}

	format, err := pickFormat(video.Formats, track.Format)
	if err != nil {
		return nil, err
	}

	y.logger.Info("opening stream",
		zap.String("id", video.ID),
		zap.Int("itag", format.ItagNo),
		zap.String("mimeType", format.MimeType),
	)

	stream, _, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, errors.Wrapf(err, "get stream for itag %d", format.ItagNo)
	}

	return stream, nil
}

func formatInfos(formats youtube.FormatList) []player.FormatInfo {
	out := make([]player.FormatInfo, 0, len(formats))
	for _, f := range formats {
		out = append(out, player.FormatInfo{
			Itag:          f.ItagNo,
			MimeType:      f.MimeType,
			AudioQuality:  f.AudioQuality,
			ContentLength: f.ContentLength,
			Bitrate:       f.Bitrate,
		})
	}
	return out
}

// pickFormat returns the format matching want, or the first format with
// audio when want is nil or no longer offered
func pickFormat(formats youtube.FormatList, want *player.FormatInfo) (*youtube.Format, error) {
	if want != nil {
		if matches := formats.Itag(want.Itag); len(matches) > 0 {
			return &matches[0], nil
		}
	}

	withAudio := formats.WithAudioChannels()
	for i := range withAudio {
		if strings.HasPrefix(withAudio[i].MimeType, "audio") {
			return &withAudio[i], nil
		}
	}
	if len(withAudio) > 0 {
		return &withAudio[0], nil
	}

	return nil, ErrNoAudioFormat
}
