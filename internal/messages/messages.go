// Package messages holds the bot's reply catalog.
package messages

import (
	_ "embed"
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/latoulicious/Kolega/pkg/player"
)

// RateLimitedCode is the user error code for throttled commands
const RateLimitedCode = "rate_limited"

//go:embed messages.json
var defaultCatalog []byte

type Player struct {
	NoMoreSongs        string   `json:"noMoreSongs"`
	NothingPlaying     string   `json:"nothingPlaying"`
	AlreadyPaused      string   `json:"alreadyPaused"`
	ClearedQueue       string   `json:"clearedQueue"`
	AlreadyQueued      string   `json:"alreadyQueued"`
	SessionClosed      string   `json:"sessionClosed"`
	Paused             string   `json:"paused"`
	Resumed            string   `json:"resumed"`
	Left               string   `json:"left"`
	NotConnected       string   `json:"notConnected"`
	Ended              []string `json:"ended"`
	AddedToQueue       []string `json:"addedToQueue"`
	AddedToQueueAsNext string   `json:"addedToQueueAsNext"`
	NowPlaying         []string `json:"nowPlaying"`
	QueueHeader        string   `json:"queueHeader"`
	HistoryHeader      string   `json:"historyHeader"`
	HistoryEmpty       string   `json:"historyEmpty"`
	HistoryDisabled    string   `json:"historyDisabled"`
	AvailableCommands  string   `json:"availableCommands"`
	FailedToQueue      string   `json:"failedToQueue"`
	CurrentlyPlaying   string   `json:"currentlyPlaying"`
	CurrentlyPaused    string   `json:"currentlyPaused"`
}

type Utility struct {
	Usage        string `json:"usage"`
	CronStatus   string `json:"cronStatus"`
	CronDisabled string `json:"cronDisabled"`
	NotScheduled string `json:"notScheduled"`
}

// Catalog is the set of user-facing texts
type Catalog struct {
	MustBeInVoiceChannel string  `json:"mustBeInVoiceChannel"`
	UnknownCommand       string  `json:"unknownCommand"`
	UnknownError         string  `json:"unknownError"`
	InvalidURL           string  `json:"invalidUrl"`
	RateLimited          string  `json:"rateLimited"`
	Player               Player  `json:"player"`
	Utility              Utility `json:"utility"`

	mu   sync.Mutex
	rand *rand.Rand
}

// Default returns the embedded catalog
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a catalog from JSON
func Parse(data []byte) (*Catalog, error) {
	c := &Catalog{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "unmarshal messages")
	}
	c.rand = rand.New(rand.NewSource(rand.Int63()))
	return c, nil
}

// Seed makes Pick deterministic
func (c *Catalog) Seed(seed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rand = rand.New(rand.NewSource(seed))
}

// Pick returns a random element of options, or "" when there are none
func (c *Catalog) Pick(options []string) string {
	if len(options) == 0 {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return options[c.rand.Intn(len(options))]
}

// NowPlaying renders a random now-playing line for the song
func (c *Catalog) NowPlaying(song string) string {
	return ApplyTokens(c.Pick(c.Player.NowPlaying), map[string]string{"SONG_NAME": song})
}

// Ended renders a random queue-finished line
func (c *Catalog) Ended() string {
	return c.Pick(c.Player.Ended)
}

// Current renders the status line for the track in flight
func (c *Catalog) Current(song string, paused bool, queued int) string {
	line := c.Player.CurrentlyPlaying
	if paused {
		line = c.Player.CurrentlyPaused
	}
	return ApplyTokens(line, map[string]string{"SONG_NAME": song, "COUNT": strconv.Itoa(queued)})
}

// CronStatus renders the retention job status. A zero next run means the
// job is not scheduled.
func (c *Catalog) CronStatus(schedule string, next time.Time, running bool) string {
	nextRun := c.Utility.NotScheduled
	if !next.IsZero() {
		nextRun = next.Format("2006-01-02 15:04:05")
	}
	return ApplyTokens(c.Utility.CronStatus, map[string]string{
		"SCHEDULE": schedule,
		"NEXT_RUN": nextRun,
		"RUNNING":  strconv.FormatBool(running),
	})
}

// AddedToQueue renders the reply for a track queued behind others.
// Position 1 is the next track to play.
func (c *Catalog) AddedToQueue(position int) string {
	if position <= 1 {
		return c.Player.AddedToQueueAsNext
	}
	return ApplyTokens(c.Pick(c.Player.AddedToQueue), map[string]string{"INDEX": strconv.Itoa(position)})
}

// UserError renders a user error with the catalog's wording when the
// catalog has one for its code
func (c *Catalog) UserError(ue *player.UserError) string {
	text := c.errorText(ue.Code)
	if text == "" {
		return ue.Content()
	}
	if ue.Context != "" {
		return text + "\n`" + ue.Context + "`"
	}
	return text
}

func (c *Catalog) errorText(code string) string {
	switch code {
	case player.ErrInvalidURL.Code:
		return c.InvalidURL
	case player.ErrAlreadyQueued.Code:
		return c.Player.AlreadyQueued
	case player.ErrNoMoreSongs.Code:
		return c.Player.NoMoreSongs
	case player.ErrNothingPlaying.Code:
		return c.Player.NothingPlaying
	case player.ErrAlreadyPaused.Code:
		return c.Player.AlreadyPaused
	case player.ErrSessionClosed.Code:
		return c.Player.SessionClosed
	case player.ErrNotInVoiceChannel.Code:
		return c.MustBeInVoiceChannel
	case RateLimitedCode:
		return c.RateLimited
	default:
		return ""
	}
}

// ApplyTokens replaces each {KEY} in s with its value
func ApplyTokens(s string, tokens map[string]string) string {
	if len(tokens) == 0 {
		return s
	}

	pairs := make([]string, 0, len(tokens)*2)
	for k, v := range tokens {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
