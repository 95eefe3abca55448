// Package engine is the local media engine behind playback.LocalStrategy.
// It decodes every source of a sound up front and pumps PCM into an
// Output, looping when asked to.
package engine

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ambientcast.app/ambientcast/playback"
)

// DefaultFramesPerBuffer is the number of stereo frames per Output write.
const DefaultFramesPerBuffer = 1024

// Output is an audio sink. Write blocks until the device accepted the
// samples.
type Output interface {
	Start(sampleRate int) error
	Write(samples []int16) error
	Close() error
}

type Option func(*Player)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Player) {
		p.log = l
	}
}

// WithDecoder replaces DecodeMP3.
func WithDecoder(d DecodeFunc) Option {
	return func(p *Player) {
		p.decode = d
	}
}

// WithOpener replaces OpenSource.
func WithOpener(open func(ctx context.Context, loc string) (io.ReadCloser, error)) Option {
	return func(p *Player) {
		p.open = open
	}
}

func WithFramesPerBuffer(n int) Option {
	return func(p *Player) {
		if n > 0 {
			p.frames = n
		}
	}
}

// Player implements playback.MediaPlayer.
type Player struct {
	sources []string
	out     Output
	log     zerolog.Logger
	decode  DecodeFunc
	open    func(ctx context.Context, loc string) (io.ReadCloser, error)
	frames  int

	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}

	mu            sync.Mutex
	pcm           PCM
	pos           int
	pendingSeek   time.Duration
	ready         bool
	err           error
	playWhenReady bool
	repeat        playback.RepeatMode
	volume        float64
	released      bool
	onError       func(error)
	onEnded       func()
}

var _ playback.MediaPlayer = (*Player)(nil)

// NewPlayer starts preparing sources in the background and returns at
// once. The player owns out and closes it when released.
func NewPlayer(ctx context.Context, sources []string, out Output, opts ...Option) *Player {
	p := &Player{
		sources: append([]string(nil), sources...),
		out:     out,
		log:     zerolog.Nop(),
		decode:  DecodeMP3,
		open:    OpenSource,
		frames:  DefaultFramesPerBuffer,
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		volume:  1,
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return p
}

// NewFactory adapts NewPlayer to playback.PlayerFactory. newOutput is
// called once per player.
func NewFactory(ctx context.Context, newOutput func() (Output, error), opts ...Option) playback.PlayerFactory {
	return func(sound playback.Sound) (playback.MediaPlayer, error) {
		out, err := newOutput()
		if err != nil {
			return nil, fmt.Errorf("engine failed to open output: %w", err)
		}
		return NewPlayer(ctx, sound.Sources(), out, opts...), nil
	}
}

func (p *Player) SeekTo(pos time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		p.pendingSeek = pos
		return
	}
	p.seekLocked(pos)
}

func (p *Player) seekLocked(pos time.Duration) {
	frame := int(pos.Seconds() * float64(p.pcm.SampleRate))
	frame = min(max(frame, 0), p.pcm.Frames())
	p.pos = frame * Channels
}

func (p *Player) SetPlayWhenReady(play bool) {
	p.mu.Lock()
	p.playWhenReady = play
	p.mu.Unlock()
	p.notify()
}

func (p *Player) SetRepeatMode(mode playback.RepeatMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeat = mode
}

func (p *Player) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = playback.ClampVolume(volume)
}

// Ready reports whether every source is decoded and the output started.
func (p *Player) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready && !p.released && p.err == nil
}

// OnError registers fn. A failure that happened before registration is
// reported right away.
func (p *Player) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	err := p.err
	p.mu.Unlock()

	if err != nil && fn != nil {
		fn(err)
	}
}

func (p *Player) OnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnded = fn
}

// Release stops playback and frees the output. It does not wait for the
// pump to exit; use Done for that.
func (p *Player) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	p.mu.Unlock()

	p.cancel()
}

// Done is closed once the background goroutine returned and the output
// is closed.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) run(ctx context.Context) {
	defer close(p.done)
	defer func() {
		if err := p.out.Close(); err != nil {
			p.log.Debug().Str("Method", "run").Err(err).Msg("closing output")
		}
	}()

	pcm, err := p.prepare(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.fail(err)
		}
		return
	}

	if err := p.out.Start(pcm.SampleRate); err != nil {
		p.fail(fmt.Errorf("engine failed to start output: %w", err))
		return
	}

	p.mu.Lock()
	p.pcm = pcm
	p.ready = true
	p.seekLocked(p.pendingSeek)
	p.mu.Unlock()

	p.log.Debug().Str("Method", "run").Int("SampleRate", pcm.SampleRate).Int("Frames", pcm.Frames()).Msg("player ready")
	p.pump(ctx)
}

func (p *Player) prepare(ctx context.Context) (PCM, error) {
	if len(p.sources) == 0 {
		return PCM{}, ErrNoSources
	}

	var all PCM
	for _, loc := range p.sources {
		pcm, err := p.load(ctx, loc)
		if err != nil {
			return PCM{}, err
		}

		switch {
		case all.SampleRate == 0:
			all.SampleRate = pcm.SampleRate
		case all.SampleRate != pcm.SampleRate:
			return PCM{}, errors.Wrapf(ErrUnsupportedFormat, "%s: sample rate %d, want %d", loc, pcm.SampleRate, all.SampleRate)
		}
		all.Samples = append(all.Samples, pcm.Samples...)
	}

	if len(all.Samples) == 0 {
		return PCM{}, errors.Wrap(ErrUnsupportedFormat, "sources decoded to silence")
	}
	return all, nil
}

func (p *Player) load(ctx context.Context, loc string) (PCM, error) {
	rc, err := p.open(ctx, loc)
	if err != nil {
		return PCM{}, err
	}
	defer rc.Close()

	pcm, err := p.decode(rc)
	if err != nil {
		return PCM{}, fmt.Errorf("%s: %w", loc, err)
	}
	return pcm, nil
}

func (p *Player) pump(ctx context.Context) {
	buf := make([]int16, p.frames*Channels)

	for {
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		if !p.playWhenReady {
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}

		ended := p.fillLocked(buf)
		var onEnded func()
		if ended {
			p.playWhenReady = false
			onEnded = p.onEnded
		}
		p.mu.Unlock()

		if err := p.out.Write(buf); err != nil {
			if ctx.Err() == nil {
				p.fail(fmt.Errorf("engine failed to write output: %w", err))
			}
			return
		}

		if onEnded != nil {
			onEnded()
		}
	}
}

// fillLocked copies the next samples into buf with the current gain. It
// wraps around in RepeatOne and zero-fills past the end otherwise, in
// which case it reports true.
func (p *Player) fillLocked(buf []int16) bool {
	gain := p.volume
	total := len(p.pcm.Samples)

	i := 0
	for i < len(buf) {
		if p.pos >= total {
			if p.repeat != playback.RepeatOne {
				clear(buf[i:])
				return true
			}
			p.pos = 0
		}

		n := copy(buf[i:], p.pcm.Samples[p.pos:])
		for j := i; j < i+n; j++ {
			buf[j] = applyGain(buf[j], gain)
		}
		i += n
		p.pos += n
	}

	return false
}

func applyGain(s int16, gain float64) int16 {
	if gain >= 1 {
		return s
	}
	v := math.Round(float64(s) * gain)
	return int16(min(max(v, math.MinInt16), math.MaxInt16))
}

func (p *Player) fail(err error) {
	p.mu.Lock()
	if p.err != nil || p.released {
		p.mu.Unlock()
		return
	}
	p.err = err
	fn := p.onError
	p.mu.Unlock()

	p.log.Error().Str("Method", "fail").Err(err).Msg("player failed")
	if fn != nil {
		fn(err)
	}
}
