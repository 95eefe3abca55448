package interactive

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/encoding"
	"github.com/mattn/go-runewidth"

	"ambientcast.app/ambientcast/internal/screeninterfaces"
	"ambientcast.app/ambientcast/playback"
)

// volumeStep is the PgUp/PgDn volume change.
const volumeStep = 0.05

var _ screeninterfaces.Screen = (*SoundScreen)(nil)

// SoundScreen is the terminal control screen of one sound.
type SoundScreen struct {
	Current     tcell.Screen
	strategy    playback.Strategy
	exitCTXfunc context.CancelFunc
	title       string
	backend     string
	finiOnce    sync.Once

	mu         sync.RWMutex
	state      playback.State
	volume     float64
	preset     string
	lastAction string
}

// InitSoundScreen creates a screen driving strategy. volume is the
// volume the strategy was started with.
func InitSoundScreen(strategy playback.Strategy, title, backend string, volume float64, ctxCancel context.CancelFunc) (*SoundScreen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("interactive: %w", err)
	}

	return newSoundScreen(s, strategy, title, backend, volume, ctxCancel), nil
}

func newSoundScreen(s tcell.Screen, strategy playback.Strategy, title, backend string, volume float64, ctxCancel context.CancelFunc) *SoundScreen {
	return &SoundScreen{
		Current:     s,
		strategy:    strategy,
		exitCTXfunc: ctxCancel,
		title:       title,
		backend:     backend,
		state:       playback.StateStopped,
		volume:      playback.ClampVolume(volume),
	}
}

func (p *SoundScreen) emitStr(x, y int, style tcell.Style, str string) {
	s := p.Current
	for _, c := range str {
		var comb []rune
		w := runewidth.RuneWidth(c)
		if w == 0 {
			comb = []rune{c}
			c = ' '
			w = 1
		}
		s.SetContent(x, y, c, comb, style)
		x += w
	}
}

func (p *SoundScreen) emitCentered(y int, style tcell.Style, str string) {
	w, _ := p.Current.Size()
	p.emitStr(w/2-runewidth.StringWidth(str)/2, y, style, str)
}

// EmitMsg redraws the screen with inputtext as the status line.
func (p *SoundScreen) EmitMsg(inputtext string) {
	p.mu.Lock()
	p.lastAction = inputtext
	volume := p.volume
	preset := p.preset
	p.mu.Unlock()

	s := p.Current
	_, h := s.Size()
	boldStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Bold(true)
	blinkStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite).Blink(true)

	s.Clear()

	p.emitStr(1, 1, tcell.StyleDefault, "Press ESC to stop and exit.")
	p.emitCentered(h/2-4, tcell.StyleDefault, fmt.Sprintf("Sound: %s (%s)", p.title, p.backend))
	if preset != "" {
		p.emitCentered(h/2-3, tcell.StyleDefault, "Preset: "+preset)
	}

	switch inputtext {
	case "Waiting for status...", "Buffering...":
		p.emitCentered(h/2, blinkStyle, inputtext)
	default:
		p.emitCentered(h/2, boldStyle, inputtext)
	}

	p.emitCentered(h/2+2, tcell.StyleDefault, volumeBar(volume, 20))
	p.emitCentered(h/2+4, tcell.StyleDefault, `"p" (Play/Pause)  "s" (Stop)`)
	p.emitCentered(h/2+6, tcell.StyleDefault, `"Page Up" "Page Down" (Volume Up/Down)`)
	s.Show()
}

// InterInit runs the screen until ESC is pressed. Init failures are sent
// on c.
func (p *SoundScreen) InterInit(c chan error) {
	encoding.Register()
	s := p.Current
	if err := s.Init(); err != nil {
		c <- fmt.Errorf("interactive: %w", err)
		return
	}

	defStyle := tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite)
	s.SetStyle(defStyle)

	p.EmitMsg("Waiting for status...")

	for {
		switch ev := s.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			s.Sync()
			p.EmitMsg(p.getLastAction())
		case *tcell.EventKey:
			p.HandleKeyEvent(ev)
		}
	}
}

// HandleKeyEvent maps key presses to strategy calls.
func (p *SoundScreen) HandleKeyEvent(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		p.strategy.Stop()
		p.Fini()
		return
	case tcell.KeyPgUp, tcell.KeyPgDn:
		delta := volumeStep
		if ev.Key() == tcell.KeyPgDn {
			delta = -delta
		}

		p.mu.Lock()
		p.volume = stepVolume(p.volume, delta)
		volume := p.volume
		p.mu.Unlock()

		p.strategy.SetVolume(volume)
		p.EmitMsg(p.getLastAction())
		return
	}

	switch ev.Rune() {
	case 'p':
		p.mu.Lock()
		action := playPauseActionFromState(p.state)
		if action == "Pause" {
			p.state = playback.StatePaused
		} else {
			p.state = playback.StatePlaying
		}
		p.mu.Unlock()

		if action == "Pause" {
			p.strategy.Pause()
			p.EmitMsg("Paused")
		} else {
			p.strategy.Play()
			p.EmitMsg("Playing")
		}
	case 's':
		p.mu.Lock()
		p.state = playback.StateStopped
		p.mu.Unlock()

		p.strategy.Stop()
		p.EmitMsg("Stopped")
	}
}

// HandleEvent reflects a playback event on the screen.
func (p *SoundScreen) HandleEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventStateChanged:
		p.mu.Lock()
		p.state = ev.State
		p.mu.Unlock()
		screeninterfaces.Emit(p, screeninterfaces.EventText(ev))
	case playback.EventUIUpdated:
		p.mu.Lock()
		if ev.Preset != nil {
			p.preset = *ev.Preset
		}
		if ev.State != playback.StateUnknown {
			p.state = ev.State
		}
		p.mu.Unlock()
		p.EmitMsg(p.getLastAction())
	case playback.EventError:
		p.mu.Lock()
		p.state = playback.StateStopped
		p.mu.Unlock()
		screeninterfaces.Emit(p, screeninterfaces.EventText(ev))
	case playback.EventWarning:
		screeninterfaces.Emit(p, screeninterfaces.EventText(ev))
	}
}

// Fini closes the screen and exits. Later calls are no-ops.
func (p *SoundScreen) Fini() {
	p.finiOnce.Do(func() {
		p.Current.Fini()
		p.exitCTXfunc()
	})
}

func (p *SoundScreen) getLastAction() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastAction
}

func playPauseActionFromState(st playback.State) string {
	switch st {
	case playback.StatePlaying, playback.StateBuffering:
		return "Pause"
	default:
		return "Play"
	}
}

func stepVolume(v, delta float64) float64 {
	// Round to whole percents so repeated steps land on 0 and 1.
	v = float64(int((v+delta)*100+0.5)) / 100
	return playback.ClampVolume(v)
}

func volumeBar(v float64, width int) string {
	filled := int(v*float64(width) + 0.5)
	return fmt.Sprintf("Volume [%s%s] %3d%%",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		int(v*100+0.5))
}
