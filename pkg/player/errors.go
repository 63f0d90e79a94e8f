package player

import "errors"

// UserError carries a message meant to be shown to the user as is
type UserError struct {
	Code    string
	Message string
	Context string
}

func (e *UserError) Error() string {
	return e.Message
}

// Is matches user errors by code so contextualized copies still match
// their sentinel
func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	return ok && t.Code == e.Code
}

// WithContext returns a copy of the error with an extra detail line
func (e *UserError) WithContext(context string) *UserError {
	c := *e
	c.Context = context
	return &c
}

// Content renders the message with its context, if any
func (e *UserError) Content() string {
	if e.Context == "" {
		return e.Message
	}
	return e.Message + "\n`" + e.Context + "`"
}

// AsUserError extracts a user error from err's chain
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// User-facing errors
var (
	ErrInvalidURL        = &UserError{Code: "invalid_url", Message: "That doesn't look like a YouTube link."}
	ErrAlreadyQueued     = &UserError{Code: "already_queued", Message: "That song is already queued."}
	ErrNoMoreSongs       = &UserError{Code: "no_more_songs", Message: "There are no more songs in the queue."}
	ErrNothingPlaying    = &UserError{Code: "nothing_playing", Message: "Nothing is playing right now."}
	ErrAlreadyPaused     = &UserError{Code: "already_paused", Message: "Playback is already paused."}
	ErrSessionClosed     = &UserError{Code: "session_closed", Message: "The player already left the channel, try again."}
	ErrNotInVoiceChannel = &UserError{Code: "not_in_voice_channel", Message: "You must be in a voice channel to use the player."}
)
