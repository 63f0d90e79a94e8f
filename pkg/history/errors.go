package history

import "errors"

// Store errors
var (
	ErrInvalidPath      = errors.New("invalid history database path")
	ErrInvalidRetention = errors.New("invalid history retention")
	ErrStoreClosed      = errors.New("history store closed")
)
