package voice

import "errors"

// Connection errors
var (
	ErrConnectTimeout     = errors.New("voice connection timed out")
	ErrConnectionClosed   = errors.New("voice connection closed")
	ErrSubscriptionFailed = errors.New("failed to subscribe to voice connection")
)

// Player errors
var (
	ErrPlayerClosed = errors.New("audio player closed")
)
