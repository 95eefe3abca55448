package playback

import (
	"fmt"
	"time"

	"ambientcast.app/ambientcast/castprotocol"
	"ambientcast.app/ambientcast/internal/looper"
)

// TokenProvider returns the access token the receiver needs to fetch
// sound segments. It may block; it is never called on the scheduler.
type TokenProvider func() (string, error)

// ReceiverSettings are pushed to the receiver once per session.
type ReceiverSettings struct {
	FadeIn          time.Duration
	FadeOut         time.Duration
	AudioBitrate    string
	PremiumSegments bool
}

// RemoteRelay turns inbound receiver events into playback events and
// answers receiver requests.
type RemoteRelay struct {
	session   castprotocol.Session
	namespace string
	registry  *castprotocol.Registry
	sched     looper.Scheduler
	tokens    TokenProvider
	opts      options
}

// NewRemoteRelay answers on namespace of session. tokens may be nil, in
// which case token requests are reported as warnings.
func NewRemoteRelay(session castprotocol.Session, namespace string, registry *castprotocol.Registry, sched looper.Scheduler, tokens TokenProvider, opts ...Option) *RemoteRelay {
	if registry == nil {
		registry = castprotocol.DefaultRegistry()
	}
	return &RemoteRelay{
		session:   session,
		namespace: namespace,
		registry:  registry,
		sched:     sched,
		tokens:    tokens,
		opts:      buildOptions(opts),
	}
}

// Attach starts l with the relay as its event and error sink.
func (r *RemoteRelay) Attach(l *castprotocol.Listener) {
	l.Start(r.Handle, r.HandleDecodeError)
}

// Handle relays ev on the scheduler's thread.
func (r *RemoteRelay) Handle(ev castprotocol.RemoteEvent) {
	r.sched.Post(func() { r.handle(ev) })
}

// HandleDecodeError reports a message the listener could not decode.
func (r *RemoteRelay) HandleDecodeError(_ []byte, err error) {
	r.sched.Post(func() {
		r.opts.emit(Event{Type: EventWarning, Err: err})
	})
}

func (r *RemoteRelay) handle(ev castprotocol.RemoteEvent) {
	switch e := ev.(type) {
	case *castprotocol.SoundStateChanged:
		r.opts.emit(Event{Type: EventStateChanged, SoundID: e.SoundID, State: ParseState(e.State)})
	case *castprotocol.SoundUiUpdated:
		r.opts.emit(Event{Type: EventUIUpdated, SoundID: e.SoundID, State: ParseState(e.State), Volume: ClampVolume(e.Volume)})
	case *castprotocol.GlobalUiUpdated:
		r.opts.emit(Event{Type: EventUIUpdated, State: ParseState(e.State), Volume: ClampVolume(e.Volume)})
	case *castprotocol.PresetNameUpdated:
		r.opts.emit(Event{Type: EventUIUpdated, Preset: e.Name})
	case *castprotocol.GetAccessToken:
		r.answerToken()
	default:
		r.opts.log.Debug().Str("Method", "handle").Str("Kind", ev.Kind()).Msg("ignoring event")
	}
}

func (r *RemoteRelay) answerToken() {
	if r.tokens == nil {
		r.opts.emit(Event{Type: EventWarning, Err: fmt.Errorf("receiver requested an access token but no provider is set")})
		return
	}

	go func() {
		token, err := r.tokens()
		r.sched.Post(func() {
			if err != nil {
				r.opts.log.Warn().Str("Method", "answerToken").Err(err).Msg("token provider failed")
				r.opts.emit(Event{Type: EventWarning, Err: err})
				return
			}
			r.send(castprotocol.GetAccessTokenResponse{AccessToken: token})
		})
	}()
}

func (r *RemoteRelay) send(ev castprotocol.RemoteEvent) {
	if err := castprotocol.SendEvent(r.session, r.namespace, r.registry, ev); err != nil {
		err = fmt.Errorf("%w: %w", ErrChannelSend, err)
		r.opts.log.Warn().Str("Method", "send").Str("Kind", ev.Kind()).Err(err).Msg("event not delivered")
		r.opts.emit(Event{Type: EventWarning, Err: err})
	}
}

// SyncReceiverSettings queues the receiver configuration events.
func (r *RemoteRelay) SyncReceiverSettings(settings ReceiverSettings) {
	r.sched.Post(func() {
		r.send(castprotocol.SetSoundFadeInDuration{DurationMillis: settings.FadeIn.Milliseconds()})
		r.send(castprotocol.SetSoundFadeOutDuration{DurationMillis: settings.FadeOut.Milliseconds()})
		if settings.AudioBitrate != "" {
			r.send(castprotocol.SetSoundAudioBitrate{Bitrate: settings.AudioBitrate})
		}
		r.send(castprotocol.EnableSoundPremiumSegments{IsEnabled: settings.PremiumSegments})
	})
}
