package playback

import (
	"fmt"

	"ambientcast.app/ambientcast/castprotocol"
	"ambientcast.app/ambientcast/internal/looper"
)

// CastStrategy forwards every control call to a remote receiver, which
// owns the actual playback state. The only local state is the last sent
// volume.
type CastStrategy struct {
	sound     Sound
	session   castprotocol.Session
	namespace string
	sched     looper.Scheduler
	opts      options

	volume float64
}

var _ Strategy = (*CastStrategy)(nil)

// NewCastStrategy queues a create message for sound at volume 0 ahead of
// any other call.
func NewCastStrategy(sound Sound, session castprotocol.Session, namespace string, sched looper.Scheduler, opts ...Option) *CastStrategy {
	s := &CastStrategy{
		sound:     sound,
		session:   session,
		namespace: namespace,
		sched:     sched,
		opts:      buildOptions(opts),
	}
	sched.Post(func() { s.send(castprotocol.ActionCreate) })
	return s
}

func (s *CastStrategy) SetVolume(volume float64) {
	s.sched.Post(func() {
		v := ClampVolume(volume)
		if v == s.volume {
			return
		}
		s.volume = v
		s.send(castprotocol.ActionNone)
	})
}

func (s *CastStrategy) Play() {
	s.sched.Post(func() { s.send(castprotocol.ActionPlay) })
}

func (s *CastStrategy) Pause() {
	s.sched.Post(func() { s.send(castprotocol.ActionPause) })
}

func (s *CastStrategy) Stop() {
	s.sched.Post(func() { s.send(castprotocol.ActionStop) })
}

func (s *CastStrategy) message(action castprotocol.Action) *castprotocol.ControlMessage {
	return &castprotocol.ControlMessage{
		SoundKey:  s.sound.ID(),
		Src:       s.sound.Sources(),
		IsLooping: s.sound.IsLoopable(),
		Volume:    s.volume,
		Action:    action,
	}
}

func (s *CastStrategy) send(action castprotocol.Action) {
	s.opts.log.Debug().Str("Method", "send").Str("SoundID", s.sound.ID()).Str("Action", string(action)).Float64("Volume", s.volume).Msg("sending control message")

	if err := s.session.Send(s.namespace, s.message(action)); err != nil {
		err = fmt.Errorf("%w: %w", ErrChannelSend, err)
		s.opts.log.Warn().Str("Method", "send").Str("SoundID", s.sound.ID()).Err(err).Msg("control message not delivered")
		s.opts.emit(Event{Type: EventWarning, SoundID: s.sound.ID(), Volume: s.volume, Err: err})
	}
}
