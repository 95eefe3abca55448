package playback

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vishen/go-chromecast/cast"

	"ambientcast.app/ambientcast/castprotocol"
)

type fakePlayer struct {
	calls         []string
	volumes       []float64
	ready         bool
	playWhenReady bool
	repeat        RepeatMode
	released      int

	onError func(error)
	onEnded func()
}

func (p *fakePlayer) SeekTo(pos time.Duration) {
	p.calls = append(p.calls, fmt.Sprintf("seek:%v", pos))
}

func (p *fakePlayer) SetPlayWhenReady(play bool) {
	p.playWhenReady = play
	p.calls = append(p.calls, fmt.Sprintf("playWhenReady:%t", play))
}

func (p *fakePlayer) SetRepeatMode(mode RepeatMode) {
	p.repeat = mode
	p.calls = append(p.calls, fmt.Sprintf("repeat:%d", mode))
}

func (p *fakePlayer) SetVolume(volume float64) {
	p.volumes = append(p.volumes, volume)
	p.calls = append(p.calls, "volume")
}

func (p *fakePlayer) Ready() bool {
	return p.ready
}

func (p *fakePlayer) OnError(fn func(error)) {
	p.onError = fn
}

func (p *fakePlayer) OnEnded(fn func()) {
	p.onEnded = fn
}

func (p *fakePlayer) Release() {
	p.released++
	p.calls = append(p.calls, "release")
}

func (p *fakePlayer) lastVolume() float64 {
	if len(p.volumes) == 0 {
		return -1
	}
	return p.volumes[len(p.volumes)-1]
}

// playerPool hands out ready fake players and remembers them.
type playerPool struct {
	players []*fakePlayer
	err     error
}

func (pp *playerPool) factory(Sound) (MediaPlayer, error) {
	if pp.err != nil {
		return nil, pp.err
	}
	p := &fakePlayer{ready: true}
	pp.players = append(pp.players, p)
	return p, nil
}

func (pp *playerPool) last() *fakePlayer {
	if len(pp.players) == 0 {
		return nil
	}
	return pp.players[len(pp.players)-1]
}

type eventLog struct {
	events []Event
}

func (l *eventLog) handle(ev Event) {
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// mockSession records the JSON form of every outbound payload.
type mockSession struct {
	mock.Mock
	sent []string
}

func (m *mockSession) Send(namespace string, payload cast.Payload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.sent = append(m.sent, string(b))
	args := m.Called(namespace, string(b))
	return args.Error(0)
}

func (m *mockSession) Subscribe(string, castprotocol.MessageFunc) func() {
	return func() {}
}
