package commands

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/latoulicious/Kolega/internal/messages"
	"github.com/latoulicious/Kolega/pkg/history"
	"github.com/latoulicious/Kolega/pkg/player"
	"github.com/latoulicious/Kolega/pkg/voice"
)

// commandTimeout bounds a single command, including joining the channel
const commandTimeout = 90 * time.Second

// historyLimit is how many entries the history command shows
const historyLimit = 10

// ErrRateLimited is returned when a user sends commands too quickly
var ErrRateLimited = &player.UserError{Code: messages.RateLimitedCode, Message: "Slow down."}

// Messenger posts plain text messages to a channel
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// VoiceLocator finds the voice channel a user is connected to
type VoiceLocator interface {
	UserVoiceChannel(guildID, userID string) (voice.ChannelRef, error)
}

// HistoryReader lists recently played tracks
type HistoryReader interface {
	Recent(ctx context.Context, guildID string, limit int) ([]history.Entry, error)
}

// RetentionStatus reports on the scheduled history pruning job
type RetentionStatus interface {
	Schedule() string
	NextRun() time.Time
	Running() bool
}

// Request is one parsed chat command
type Request struct {
	GuildID   string
	ChannelID string
	UserID    string
	Args      []string
}

type command func(ctx context.Context, req Request) (string, error)

// Handler runs player commands and renders their replies
type Handler struct {
	registry  *player.Registry
	locator   VoiceLocator
	out       Messenger
	catalog   *messages.Catalog
	history   HistoryReader
	retention RetentionStatus
	limiter   *Limiter
	prefix    string
	logger    *zap.Logger

	commands map[string]command
}

// Options configures a Handler. History, Retention and Limiter are
// optional.
type Options struct {
	Registry  *player.Registry
	Locator   VoiceLocator
	Out       Messenger
	Catalog   *messages.Catalog
	History   HistoryReader
	Retention RetentionStatus
	Limiter   *Limiter
	Prefix    string
	Logger    *zap.Logger
}

// NewHandler creates a command handler
func NewHandler(opts Options) *Handler {
	h := &Handler{
		registry:  opts.Registry,
		locator:   opts.Locator,
		out:       opts.Out,
		catalog:   opts.Catalog,
		history:   opts.History,
		retention: opts.Retention,
		limiter:   opts.Limiter,
		prefix:    opts.Prefix,
		logger:    opts.Logger.Named("commands"),
	}

	h.commands = map[string]command{
		"play":       h.play,
		"p":          h.play,
		"queue":      h.play,
		"pause":      h.pause,
		"resume":     h.resume,
		"unpause":    h.resume,
		"skip":       h.skip,
		"next":       h.skip,
		"clear":      h.clear,
		"list":       h.list,
		"nowplaying": h.nowPlaying,
		"np":         h.nowPlaying,
		"stop":       h.stop,
		"leave":      h.stop,
		"history":    h.recent,
		"utility":    h.utility,
		"help":       h.help,
	}

	return h
}

// Prefix returns the command prefix
func (h *Handler) Prefix() string {
	return h.prefix
}

// Handle runs the named command and posts its reply to the request channel
func (h *Handler) Handle(ctx context.Context, name string, req Request) {
	h.reply(req.ChannelID, h.Run(ctx, name, req))
}

// Run executes the named command and returns the rendered reply. An empty
// reply means there is nothing to say.
func (h *Handler) Run(ctx context.Context, name string, req Request) string {
	log := h.logger.With(
		zap.String("command", name),
		zap.String("guildID", req.GuildID),
		zap.String("userID", req.UserID),
	)

	if h.limiter != nil && !h.limiter.Allow(req.UserID) {
		log.Debug("command rate limited")
		return h.catalog.UserError(ErrRateLimited)
	}

	cmd, ok := h.commands[strings.ToLower(name)]
	if !ok {
		return h.withPrefix(h.catalog.UnknownCommand)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	text, err := cmd(ctx, req)
	if err != nil {
		return h.render(log, err)
	}
	return text
}

// render turns an error into a reply. Only user errors are shown as is.
func (h *Handler) render(log *zap.Logger, err error) string {
	if ue, ok := player.AsUserError(err); ok {
		log.Debug("command rejected", zap.String("code", ue.Code))
		return h.catalog.UserError(ue)
	}

	log.Error("command failed", zap.Error(err))
	return h.catalog.UnknownError
}

func (h *Handler) reply(channelID, text string) {
	if text == "" {
		return
	}
	if _, err := h.out.ChannelMessageSend(channelID, text); err != nil {
		h.logger.Warn("failed to send reply", zap.String("channelID", channelID), zap.Error(err))
	}
}

func (h *Handler) withPrefix(text string) string {
	return messages.ApplyTokens(text, map[string]string{"PREFIX": h.prefix})
}

func (h *Handler) play(ctx context.Context, req Request) (string, error) {
	if len(req.Args) == 0 {
		return "", player.ErrInvalidURL
	}

	ref, err := h.locator.UserVoiceChannel(req.GuildID, req.UserID)
	if err != nil {
		return "", err
	}

	session, err := h.registry.GetOrCreate(ctx, ref)
	if err != nil {
		return "", err
	}

	res, err := session.Queue(ctx, req.Args[0])
	if err != nil {
		return "", err
	}

	// the notifier announces tracks that start right away
	if res.IsPlaying {
		return "", nil
	}
	return h.catalog.AddedToQueue(res.Position), nil
}

// session returns the guild's session after checking the user is in voice
func (h *Handler) session(req Request) (*player.Session, error) {
	if _, err := h.locator.UserVoiceChannel(req.GuildID, req.UserID); err != nil {
		return nil, err
	}

	session, ok := h.registry.Get(req.GuildID)
	if !ok {
		return nil, player.ErrNothingPlaying
	}
	return session, nil
}

func (h *Handler) pause(ctx context.Context, req Request) (string, error) {
	session, err := h.session(req)
	if err != nil {
		return "", err
	}
	if err := session.Pause(); err != nil {
		return "", err
	}
	return h.catalog.Player.Paused, nil
}

func (h *Handler) resume(ctx context.Context, req Request) (string, error) {
	session, err := h.session(req)
	if err != nil {
		return "", err
	}
	if err := session.Resume(); err != nil {
		return "", err
	}
	return h.catalog.Player.Resumed, nil
}

func (h *Handler) skip(ctx context.Context, req Request) (string, error) {
	session, err := h.session(req)
	if err != nil {
		return "", err
	}
	if _, err := session.Next(); err != nil {
		return "", err
	}
	return "", nil
}

func (h *Handler) clear(ctx context.Context, req Request) (string, error) {
	session, err := h.session(req)
	if err == nil {
		session.ClearQueue()
	} else if !isNothingPlaying(err) {
		return "", err
	}
	return h.catalog.Player.ClearedQueue, nil
}

func (h *Handler) list(ctx context.Context, req Request) (string, error) {
	session, ok := h.registry.Get(req.GuildID)
	if !ok {
		return h.catalog.Player.NoMoreSongs, nil
	}

	queue := session.SongQueue()
	if len(queue) == 0 {
		return h.catalog.Player.NoMoreSongs, nil
	}

	names := make([]string, len(queue))
	for i, track := range queue {
		names[i] = track.DisplayName
	}
	return messages.List(h.catalog.Player.QueueHeader, names), nil
}

func (h *Handler) nowPlaying(ctx context.Context, req Request) (string, error) {
	session, ok := h.registry.Get(req.GuildID)
	if !ok {
		return h.catalog.Player.NothingPlaying, nil
	}

	track, ok := session.NowPlaying()
	if !ok {
		return h.catalog.Player.NothingPlaying, nil
	}

	paused := session.Status() == voice.PlayerPaused
	return h.catalog.Current(track.DisplayName, paused, len(session.SongQueue())), nil
}

func (h *Handler) stop(ctx context.Context, req Request) (string, error) {
	if !h.registry.Remove(req.GuildID) {
		return h.catalog.Player.NotConnected, nil
	}
	return h.catalog.Player.Left, nil
}

func (h *Handler) recent(ctx context.Context, req Request) (string, error) {
	if h.history == nil {
		return h.catalog.Player.HistoryDisabled, nil
	}

	entries, err := h.history.Recent(ctx, req.GuildID, historyLimit)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return h.catalog.Player.HistoryEmpty, nil
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return messages.List(h.catalog.Player.HistoryHeader, names), nil
}

func (h *Handler) utility(ctx context.Context, req Request) (string, error) {
	if len(req.Args) == 0 || strings.ToLower(req.Args[0]) != "cron" {
		return h.withPrefix(h.catalog.Utility.Usage), nil
	}
	if h.retention == nil {
		return h.catalog.Utility.CronDisabled, nil
	}

	return h.catalog.CronStatus(h.retention.Schedule(), h.retention.NextRun(), h.retention.Running()), nil
}

func (h *Handler) help(ctx context.Context, req Request) (string, error) {
	return h.withPrefix(h.catalog.Player.AvailableCommands), nil
}

func isNothingPlaying(err error) bool {
	ue, ok := player.AsUserError(err)
	return ok && ue.Code == player.ErrNothingPlaying.Code
}
