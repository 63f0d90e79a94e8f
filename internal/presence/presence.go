package presence

import (
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/pkg/player"
)

// refreshInterval is how often the idle presence is refreshed
const refreshInterval = 5 * time.Minute

// StatusUpdater sets the bot's gateway presence
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// Manager shows what the bot is playing, falling back to a server count
// when nothing plays anywhere
type Manager struct {
	status     StatusUpdater
	guildCount func() int
	logger     *zap.Logger

	// sendMu keeps updates in the order their state was computed
	sendMu sync.Mutex

	mu      sync.Mutex
	playing map[string]string // guildID to song
	order   []string          // guilds by most recent start
	shown   string

	stop chan struct{}
	once sync.Once
}

// NewManager creates a presence manager. guildCount feeds the idle status.
func NewManager(status StatusUpdater, guildCount func() int, logger *zap.Logger) *Manager {
	return &Manager{
		status:     status,
		guildCount: guildCount,
		logger:     logger.Named("presence"),
		playing:    make(map[string]string),
		stop:       make(chan struct{}),
	}
}

// Attach follows a session's events until it is disposed
func (m *Manager) Attach(session *player.Session) {
	go m.run(session.Channel().GuildID, session.Subscribe(player.DefaultListenerBuffer))
}

func (m *Manager) run(guildID string, events *player.Listener) {
	for ev := range events.C {
		switch ev.Kind {
		case player.EventNextSong:
			m.started(guildID, ev.Track.DisplayName)
		case player.EventFinished, player.EventClosed:
			m.stopped(guildID)
		}
	}
	m.stopped(guildID)
}

func (m *Manager) started(guildID, song string) {
	m.mu.Lock()
	m.playing[guildID] = song
	m.order = append(without(m.order, guildID), guildID)
	m.mu.Unlock()

	m.refresh()
}

func (m *Manager) stopped(guildID string) {
	m.mu.Lock()
	_, ok := m.playing[guildID]
	delete(m.playing, guildID)
	m.order = without(m.order, guildID)
	m.mu.Unlock()

	if ok {
		m.refresh()
	}
}

// Current returns the song shown in the presence, or "" when idle
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown
}

// refresh shows the most recently started song, or the idle status
func (m *Manager) refresh() {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	song := ""
	if n := len(m.order); n > 0 {
		song = m.playing[m.order[n-1]]
	}
	m.shown = song
	m.mu.Unlock()

	var data discordgo.UpdateStatusData
	if song != "" {
		data = listening(song)
	} else {
		data = idle(m.guildCount())
	}

	if err := m.status.UpdateStatusComplex(data); err != nil {
		m.logger.Warn("failed to update presence", zap.Error(err))
	}
}

// Start sets the idle presence and refreshes it periodically while
// nothing is playing
func (m *Manager) Start() {
	m.refresh()

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if m.Current() == "" {
					m.refresh()
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends periodic refreshes
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.stop) })
}

func listening(song string) discordgo.UpdateStatusData {
	return discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  song,
				Type:  discordgo.ActivityTypeListening,
				State: song,
			},
		},
	}
}

func idle(guilds int) discordgo.UpdateStatusData {
	return discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name: strconv.Itoa(guilds) + " servers",
				Type: discordgo.ActivityTypeWatching,
			},
		},
	}
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
