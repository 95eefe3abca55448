package castprotocol

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// EventHandler receives decoded inbound events.
type EventHandler func(ev RemoteEvent)

// DecodeErrorHandler receives payloads that failed to decode.
type DecodeErrorHandler func(payload []byte, err error)

// Listener decodes the inbound messages of one namespace. A message that
// fails to decode is reported and skipped; the listener keeps running.
type Listener struct {
	session   Session
	namespace string
	registry  *Registry

	mu          sync.Mutex
	unsubscribe func()

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (l *Listener) Log() *zerolog.Logger {
	if l.LogOutput != nil {
		l.initLogOnce.Do(func() {
			l.Logger = zerolog.New(l.LogOutput).With().Timestamp().Logger()
		})
	}
	return &l.Logger
}

// NewListener returns a stopped listener. A nil registry selects
// DefaultRegistry.
func NewListener(s Session, namespace string, r *Registry) *Listener {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Listener{
		session:   s,
		namespace: namespace,
		registry:  r,
	}
}

// Start subscribes to the namespace. onError may be nil.
func (l *Listener) Start(onEvent EventHandler, onError DecodeErrorHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unsubscribe != nil {
		return
	}

	l.Log().Debug().Str("Method", "Start").Str("Namespace", l.namespace).Msg("listening")
	l.unsubscribe = l.session.Subscribe(l.namespace, func(payload []byte) {
		l.handle(payload, onEvent, onError)
	})
}

// Stop unsubscribes. It is safe to call more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unsubscribe == nil {
		return
	}
	l.unsubscribe()
	l.unsubscribe = nil
}

func (l *Listener) handle(payload []byte, onEvent EventHandler, onError DecodeErrorHandler) {
	ev, err := l.registry.Decode(payload)
	if err != nil {
		l.Log().Warn().Str("Method", "handle").Str("Namespace", l.namespace).Err(err).Msg("dropping message")
		if onError != nil {
			onError(payload, err)
		}
		return
	}

	l.Log().Debug().Str("Method", "handle").Str("Kind", ev.Kind()).Msg("event received")
	if onEvent != nil {
		onEvent(ev)
	}
}
