package player

import (
	"context"
	"io"
	"strings"
)

// FormatInfo describes one stream variant offered by a source
type FormatInfo struct {
	Itag          int // stream selector token
	MimeType      string
	AudioQuality  string // quality tier, e.g. AUDIO_QUALITY_MEDIUM
	ContentLength int64
	Bitrate       int
}

// AudioOnly reports whether the variant carries audio without video
func (f FormatInfo) AudioOnly() bool {
	return strings.HasPrefix(f.MimeType, "audio")
}

// Track is one playable item. Tracks are compared by URL.
type Track struct {
	URL         string
	DisplayName string
	Format      *FormatInfo
}

// SourceInfo is the metadata a source returns for a URL
type SourceInfo struct {
	DisplayName string
	Variants    []FormatInfo
}

// Source resolves URLs into metadata and audio streams
type Source interface {
	Validate(url string) bool
	Fetch(ctx context.Context, url string) (*SourceInfo, error)
	// Open returns the audio stream for the track's selected format.
	Open(ctx context.Context, track Track) (io.ReadCloser, error)
}
