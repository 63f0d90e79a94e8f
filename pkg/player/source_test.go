package player

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// fakeSource resolves any https://youtu.be/ URL and streams the URL itself
type fakeSource struct {
	mu       sync.Mutex
	fetches  int
	fetchErr error
	openErr  map[string]error

	// block, when set, holds Fetch until it is closed
	block   chan struct{}
	entered chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		openErr: make(map[string]error),
		entered: make(chan struct{}, 1),
	}
}

func (f *fakeSource) Validate(url string) bool {
	return strings.HasPrefix(url, "https://youtu.be/")
}

func (f *fakeSource) Fetch(ctx context.Context, url string) (*SourceInfo, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	err := f.fetchErr
	f.mu.Unlock()

	if block != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-block
	}
	if err != nil {
		return nil, err
	}

	return &SourceInfo{
		DisplayName: "song " + strings.TrimPrefix(url, "https://youtu.be/"),
		Variants: []FormatInfo{
			{Itag: 251, MimeType: `audio/webm; codecs="opus"`, AudioQuality: "AUDIO_QUALITY_MEDIUM", ContentLength: 100},
		},
	}, nil
}

func (f *fakeSource) Open(ctx context.Context, track Track) (io.ReadCloser, error) {
	f.mu.Lock()
	err := f.openErr[track.URL]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(track.URL)), nil
}

func (f *fakeSource) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeSource) FailOpen(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr[url] = errors.New("stream unavailable")
}
