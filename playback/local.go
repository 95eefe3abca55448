package playback

import (
	"fmt"

	"ambientcast.app/ambientcast/fade"
	"ambientcast.app/ambientcast/internal/looper"
)

// LocalStrategy plays a sound on a media engine it exclusively owns.
// The engine is created on the first Play and released by Stop, so an
// instance that is stopped owns no engine.
type LocalStrategy struct {
	sound     Sound
	sched     looper.Scheduler
	newPlayer PlayerFactory
	opts      options

	// Owned by the scheduler's thread.
	player  MediaPlayer
	gen     int
	state   State
	volume  float64
	applied float64
	fader   *fade.Fader
}

var _ Strategy = (*LocalStrategy)(nil)

func NewLocalStrategy(sound Sound, sched looper.Scheduler, newPlayer PlayerFactory, opts ...Option) *LocalStrategy {
	s := &LocalStrategy{
		sound:     sound,
		sched:     sched,
		newPlayer: newPlayer,
		opts:      buildOptions(opts),
		state:     StateStopped,
		volume:    1,
	}
	s.fader = fade.New(sched, s.applyVolume, s.playerReady)
	return s
}

func (s *LocalStrategy) SetVolume(volume float64) {
	s.sched.Post(func() { s.setVolume(volume) })
}

func (s *LocalStrategy) Play() {
	s.sched.Post(s.play)
}

func (s *LocalStrategy) Pause() {
	s.sched.Post(s.pause)
}

func (s *LocalStrategy) Stop() {
	s.sched.Post(s.stop)
}

func (s *LocalStrategy) setVolume(v float64) {
	v = ClampVolume(v)
	if v == s.volume {
		return
	}

	s.opts.log.Debug().Str("Method", "SetVolume").Str("SoundID", s.sound.ID()).Float64("Volume", v).Msg("setting volume")
	s.volume = v
	if s.state != StatePlaying || s.player == nil {
		return
	}

	// Retarget a running fade in; it still ends when it would have.
	if s.fader.Active() {
		s.fader.Fade(s.applied, v, s.fader.Remaining(), nil)
		return
	}
	s.applyVolume(v)
}

func (s *LocalStrategy) play() {
	if s.state == StatePlaying {
		return
	}

	if s.player == nil {
		if err := s.acquire(); err != nil {
			s.fail(err)
			return
		}
	}

	s.opts.log.Debug().Str("Method", "Play").Str("SoundID", s.sound.ID()).Stringer("From", s.state).Msg("playing")
	s.state = StatePlaying

	if s.sound.IsLoopable() {
		s.player.SetRepeatMode(RepeatOne)
		s.player.SetPlayWhenReady(true)
		s.fader.Fade(s.applied, s.volume, s.opts.fadeIn, nil)
	} else {
		s.fader.Cancel()
		s.player.SetRepeatMode(RepeatOff)
		s.player.SeekTo(0)
		s.applyVolume(s.volume)
		s.player.SetPlayWhenReady(true)
	}

	s.emitState()
}

func (s *LocalStrategy) pause() {
	if s.state != StatePlaying {
		return
	}

	s.opts.log.Debug().Str("Method", "Pause").Str("SoundID", s.sound.ID()).Msg("pausing")
	s.state = StatePaused

	d := s.opts.fadeOut
	if !s.playerReady() {
		d = 0
	}
	player := s.player
	s.fader.Fade(s.applied, 0, d, func() {
		player.SetPlayWhenReady(false)
	})

	s.emitState()
}

func (s *LocalStrategy) stop() {
	if s.state == StateStopped {
		return
	}

	s.opts.log.Debug().Str("Method", "Stop").Str("SoundID", s.sound.ID()).Stringer("From", s.state).Msg("stopping")
	s.state = StateStopped

	if s.playerReady() && s.applied > 0 {
		s.fader.Fade(s.applied, 0, s.opts.fadeOut, s.release)
	} else {
		s.fader.Cancel()
		s.release()
	}

	s.emitState()
}

func (s *LocalStrategy) acquire() error {
	p, err := s.newPlayer(s.sound)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlayerUnavailable, err)
	}

	s.gen++
	gen := s.gen
	p.OnError(func(err error) {
		s.sched.Post(func() {
			if gen != s.gen {
				return
			}
			s.fail(fmt.Errorf("%w: %w", ErrEngine, err))
		})
	})
	p.OnEnded(func() {
		s.sched.Post(func() {
			if gen != s.gen || s.state != StatePlaying {
				return
			}
			s.state = StatePaused
			s.emitState()
		})
	})

	s.player = p
	s.applyVolume(0)
	return nil
}

// release frees the engine. It runs at most once per engine.
func (s *LocalStrategy) release() {
	if s.player == nil {
		return
	}

	p := s.player
	s.player = nil
	s.gen++
	s.applied = 0
	p.Release()
}

func (s *LocalStrategy) fail(err error) {
	s.opts.log.Error().Str("Method", "fail").Str("SoundID", s.sound.ID()).Err(err).Msg("playback failed")

	s.fader.Cancel()
	s.release()
	s.state = StateStopped

	s.opts.emit(Event{Type: EventError, SoundID: s.sound.ID(), State: StateStopped, Err: err})
}

func (s *LocalStrategy) applyVolume(v float64) {
	s.applied = v
	if s.player != nil {
		s.player.SetVolume(v)
	}
}

func (s *LocalStrategy) playerReady() bool {
	return s.player != nil && s.player.Ready()
}

func (s *LocalStrategy) emitState() {
	s.opts.emit(Event{Type: EventStateChanged, SoundID: s.sound.ID(), State: s.state, Volume: s.volume})
}
