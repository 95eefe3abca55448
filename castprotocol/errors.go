package castprotocol

import "github.com/pkg/errors"

var (
	ErrNotConnected         = errors.New("cast session not connected")
	ErrUnknownEventKind     = errors.New("unknown event kind")
	ErrMalformedEvent       = errors.New("malformed event payload")
	ErrIncompatibleProtocol = errors.New("incompatible protocol version")
	ErrRegistryFrozen       = errors.New("event registry is read-only")
	ErrDuplicateKind        = errors.New("event kind already registered")
)
