package commands

import (
	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/internal/messages"
	"github.com/latoulicious/Kolega/pkg/player"
)

// Notifier posts now-playing and queue-finished messages to the voice
// channel's chat
type Notifier struct {
	out     Messenger
	catalog *messages.Catalog
	logger  *zap.Logger
}

func NewNotifier(out Messenger, catalog *messages.Catalog, logger *zap.Logger) *Notifier {
	return &Notifier{
		out:     out,
		catalog: catalog,
		logger:  logger.Named("notifier"),
	}
}

// Attach follows the session's events until it is disposed
func (n *Notifier) Attach(session *player.Session) {
	go n.run(session.Subscribe(player.DefaultListenerBuffer))
}

func (n *Notifier) run(events *player.Listener) {
	for ev := range events.C {
		var text string
		switch ev.Kind {
		case player.EventNextSong:
			text = n.catalog.NowPlaying(ev.Track.DisplayName)
		case player.EventFinished:
			text = n.catalog.Ended()
		default:
			continue
		}

		if _, err := n.out.ChannelMessageSend(ev.Channel.ChannelID, text); err != nil {
			n.logger.Warn("failed to post notification",
				zap.String("channelID", ev.Channel.ChannelID),
				zap.Stringer("event", ev.Kind),
				zap.Error(err),
			)
		}
	}
}
