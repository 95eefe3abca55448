package playback

import "github.com/pkg/errors"

var (
	ErrUnsupportedBackend = errors.New("unsupported playback backend")
	ErrEngine             = errors.New("media engine failure")
	ErrChannelSend        = errors.New("cast channel send failed")
	ErrPlayerUnavailable  = errors.New("media engine unavailable")
)
