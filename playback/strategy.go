package playback

import (
	"time"

	"github.com/rs/zerolog"
)

// Strategy controls the playback of one sound. Calls return immediately;
// their effects are applied in call order on the strategy's scheduler.
type Strategy interface {
	SetVolume(volume float64)
	Play()
	Pause()
	Stop()
}

// MediaPlayer is the local audio engine driven by LocalStrategy.
type MediaPlayer interface {
	SeekTo(pos time.Duration)
	SetPlayWhenReady(play bool)
	SetRepeatMode(mode RepeatMode)
	SetVolume(volume float64)
	// Ready reports whether the engine can render audio right away.
	Ready() bool
	// OnError registers the callback for playback failures. It may be
	// invoked from any goroutine.
	OnError(fn func(err error))
	// OnEnded registers the callback for reaching the end of a
	// non-repeating sound. It may be invoked from any goroutine.
	OnEnded(fn func())
	Release()
}

// PlayerFactory builds a MediaPlayer for sound.
type PlayerFactory func(sound Sound) (MediaPlayer, error)

// EventType classifies Event.
type EventType int

const (
	EventStateChanged EventType = iota
	// EventError is terminal for the sound.
	EventError
	// EventWarning is informational; playback intent may not have been
	// honoured.
	EventWarning
	EventUIUpdated
)

// Event is reported to the owner of a strategy.
type Event struct {
	Type    EventType
	SoundID string
	State   State
	Volume  float64
	Preset  *string
	Err     error
}

// EventHandler receives events on the scheduler's thread.
type EventHandler func(Event)

const (
	DefaultFadeInDuration  = time.Second
	DefaultFadeOutDuration = time.Second
)

type options struct {
	log     zerolog.Logger
	onEvent EventHandler
	fadeIn  time.Duration
	fadeOut time.Duration
}

// Option configures strategies built directly or by a Factory.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func WithEventHandler(h EventHandler) Option {
	return func(o *options) {
		o.onEvent = h
	}
}

// WithFadeDurations sets the local fade in and fade out durations.
func WithFadeDurations(in, out time.Duration) Option {
	return func(o *options) {
		o.fadeIn = in
		o.fadeOut = out
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:     zerolog.Nop(),
		fadeIn:  DefaultFadeInDuration,
		fadeOut: DefaultFadeOutDuration,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) emit(ev Event) {
	if o.onEvent != nil {
		o.onEvent(ev)
	}
}
