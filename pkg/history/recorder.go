package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/pkg/player"
)

const recordTimeout = 5 * time.Second

// Recorder writes every started track of a session to the store
type Recorder struct {
	store  *Store
	logger *zap.Logger
}

func NewRecorder(store *Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger.Named("history")}
}

// Attach records the session's tracks until it is disposed
func (r *Recorder) Attach(session *player.Session) {
	go r.run(session.Subscribe(player.DefaultListenerBuffer))
}

func (r *Recorder) run(events *player.Listener) {
	for ev := range events.C {
		if ev.Kind != player.EventNextSong {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := r.store.Record(ctx, Entry{
			GuildID:  ev.Channel.GuildID,
			URL:      ev.Track.URL,
			Name:     ev.Track.DisplayName,
			PlayedAt: ev.Timestamp,
		})
		cancel()

		if err != nil {
			r.logger.Warn("failed to record play", zap.String("url", ev.Track.URL), zap.Error(err))
		}
	}
}
