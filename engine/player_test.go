package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ambientcast.app/ambientcast/playback"
)

type fakeOutput struct {
	mu         sync.Mutex
	sampleRate int
	closeCount int

	writes chan []int16
	closed chan struct{}
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{
		writes: make(chan []int16, 16),
		closed: make(chan struct{}),
	}
}

func (o *fakeOutput) Start(sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sampleRate = sampleRate
	return nil
}

// Write drops samples once the test stopped reading.
func (o *fakeOutput) Write(samples []int16) error {
	select {
	case <-o.closed:
		return errors.New("output closed")
	case o.writes <- append([]int16(nil), samples...):
	default:
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeCount++
	if o.closeCount == 1 {
		close(o.closed)
	}
	return nil
}

func (o *fakeOutput) next(t *testing.T) []int16 {
	t.Helper()
	select {
	case w := <-o.writes:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("no output write")
		return nil
	}
}

func fakeOpener(_ context.Context, loc string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(loc)), nil
}

// pcmDecoder returns a fixed PCM per source name.
func pcmDecoder(tracks map[string]PCM) DecodeFunc {
	return func(r io.Reader) (PCM, error) {
		b, err := io.ReadAll(r)
		if err != nil {
			return PCM{}, err
		}
		pcm, ok := tracks[string(b)]
		if !ok {
			return PCM{}, ErrUnsupportedFormat
		}
		return pcm, nil
	}
}

func newTestPlayer(t *testing.T, sources []string, tracks map[string]PCM) (*Player, *fakeOutput) {
	t.Helper()
	out := newFakeOutput()
	p := NewPlayer(context.Background(), sources, out,
		WithOpener(fakeOpener),
		WithDecoder(pcmDecoder(tracks)),
		WithFramesPerBuffer(4),
	)
	t.Cleanup(func() {
		p.Release()
		<-p.Done()
	})
	return p, out
}

func waitReady(t *testing.T, p *Player) {
	t.Helper()
	require.Eventually(t, p.Ready, 2*time.Second, 5*time.Millisecond)
}

func TestPlayerAppliesGain(t *testing.T) {
	p, out := newTestPlayer(t, []string{"a"}, map[string]PCM{
		"a": {SampleRate: 48000, Samples: []int16{1000, -1000, 1000, -1000, 1000, -1000, 1000, -1000}},
	})
	waitReady(t, p)

	p.SetRepeatMode(playback.RepeatOne)
	p.SetVolume(0.5)
	p.SetPlayWhenReady(true)

	require.Equal(t, []int16{500, -500, 500, -500, 500, -500, 500, -500}, out.next(t))

	out.mu.Lock()
	require.Equal(t, 48000, out.sampleRate)
	out.mu.Unlock()
}

func TestPlayerLoopsAcrossSources(t *testing.T) {
	p, out := newTestPlayer(t, []string{"a", "b"}, map[string]PCM{
		"a": {SampleRate: 44100, Samples: []int16{1, 2, 3, 4}},
		"b": {SampleRate: 44100, Samples: []int16{5, 6}},
	})
	waitReady(t, p)

	p.SetRepeatMode(playback.RepeatOne)
	p.SetPlayWhenReady(true)

	require.Equal(t, []int16{1, 2, 3, 4, 5, 6, 1, 2}, out.next(t))
	require.Equal(t, []int16{3, 4, 5, 6, 1, 2, 3, 4}, out.next(t))
}

func TestPlayerEndsWithoutRepeat(t *testing.T) {
	p, out := newTestPlayer(t, []string{"a"}, map[string]PCM{
		"a": {SampleRate: 44100, Samples: []int16{7, 7, 7, 7, 7, 7}},
	})
	ended := make(chan struct{}, 1)
	p.OnEnded(func() { ended <- struct{}{} })
	waitReady(t, p)

	p.SetPlayWhenReady(true)

	require.Equal(t, []int16{7, 7, 7, 7, 7, 7, 0, 0}, out.next(t))
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnEnded not called")
	}

	select {
	case w := <-out.writes:
		t.Fatalf("unexpected write after end: %v", w)
	case <-time.After(50 * time.Millisecond):
	}

	p.SeekTo(0)
	p.SetPlayWhenReady(true)
	require.Equal(t, []int16{7, 7, 7, 7, 7, 7, 0, 0}, out.next(t))
}

func TestPlayerSeekBeforeReady(t *testing.T) {
	out := newFakeOutput()
	gate := make(chan struct{})
	p := NewPlayer(context.Background(), []string{"a"}, out,
		WithOpener(func(ctx context.Context, loc string) (io.ReadCloser, error) {
			<-gate
			return fakeOpener(ctx, loc)
		}),
		WithDecoder(pcmDecoder(map[string]PCM{
			"a": {SampleRate: 2, Samples: []int16{1, 1, 2, 2, 3, 3, 4, 4}},
		})),
		WithFramesPerBuffer(1),
	)
	defer func() {
		p.Release()
		<-p.Done()
	}()

	require.False(t, p.Ready())
	p.SeekTo(time.Second)
	p.SetRepeatMode(playback.RepeatOne)
	p.SetPlayWhenReady(true)
	close(gate)

	require.Equal(t, []int16{3, 3}, out.next(t))
}

func TestPlayerErrors(t *testing.T) {
	tt := []struct {
		name    string
		sources []string
		tracks  map[string]PCM
		want    error
	}{
		{
			name: "no sources",
			want: ErrNoSources,
		},
		{
			name:    "undecodable source",
			sources: []string{"broken"},
			tracks:  map[string]PCM{},
			want:    ErrUnsupportedFormat,
		},
		{
			name:    "mixed sample rates",
			sources: []string{"a", "b"},
			tracks: map[string]PCM{
				"a": {SampleRate: 44100, Samples: []int16{1, 1}},
				"b": {SampleRate: 48000, Samples: []int16{1, 1}},
			},
			want: ErrUnsupportedFormat,
		},
		{
			name:    "silence",
			sources: []string{"a"},
			tracks:  map[string]PCM{"a": {SampleRate: 44100}},
			want:    ErrUnsupportedFormat,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := newTestPlayer(t, tc.sources, tc.tracks)

			errCh := make(chan error, 1)
			p.OnError(func(err error) { errCh <- err })

			select {
			case err := <-errCh:
				require.ErrorIs(t, err, tc.want)
			case <-time.After(2 * time.Second):
				t.Fatalf("OnError not called")
			}
			require.False(t, p.Ready())
		})
	}
}

func TestPlayerReleaseIsIdempotent(t *testing.T) {
	out := newFakeOutput()
	p := NewPlayer(context.Background(), []string{"a"}, out,
		WithOpener(fakeOpener),
		WithDecoder(pcmDecoder(map[string]PCM{"a": {SampleRate: 44100, Samples: []int16{1, 1}}})),
	)
	waitReady(t, p)

	errCh := make(chan error, 1)
	p.OnError(func(err error) { errCh <- err })

	p.Release()
	p.Release()
	<-p.Done()

	require.False(t, p.Ready())
	out.mu.Lock()
	require.Equal(t, 1, out.closeCount)
	out.mu.Unlock()
	require.Empty(t, errCh, "release is not an error")
}

func TestNewFactory(t *testing.T) {
	sound := playback.NewSound("rain", []string{"a"}, true)

	failing := NewFactory(context.Background(), func() (Output, error) {
		return nil, errors.New("no device")
	})
	_, err := failing(sound)
	require.ErrorContains(t, err, "no device")

	out := newFakeOutput()
	working := NewFactory(context.Background(), func() (Output, error) { return out, nil },
		WithOpener(fakeOpener),
		WithDecoder(pcmDecoder(map[string]PCM{"a": {SampleRate: 44100, Samples: []int16{1, 1}}})),
	)
	mp, err := working(sound)
	require.NoError(t, err)

	p := mp.(*Player)
	waitReady(t, p)
	p.Release()
	<-p.Done()
}

func TestApplyGain(t *testing.T) {
	tt := []struct {
		in   int16
		gain float64
		want int16
	}{
		{1000, 1, 1000},
		{1000, 0, 0},
		{1000, 0.25, 250},
		{-32768, 0.5, -16384},
		{32767, 1, 32767},
	}

	for _, tc := range tt {
		if got := applyGain(tc.in, tc.gain); got != tc.want {
			t.Fatalf("applyGain(%d, %v) = %d, want %d", tc.in, tc.gain, got, tc.want)
		}
	}
}
