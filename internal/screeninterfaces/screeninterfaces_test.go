package screeninterfaces

import (
	"errors"
	"testing"

	"ambientcast.app/ambientcast/playback"
)

type recordingScreen struct {
	msgs []string
	fini int
}

func (r *recordingScreen) EmitMsg(s string) { r.msgs = append(r.msgs, s) }
func (r *recordingScreen) Fini()            { r.fini++ }

func TestEventText(t *testing.T) {
	preset := "Evening"

	tests := []struct {
		name string
		ev   playback.Event
		want string
	}{
		{
			name: "playing",
			ev:   playback.Event{Type: playback.EventStateChanged, State: playback.StatePlaying},
			want: "Playing",
		},
		{
			name: "buffering",
			ev:   playback.Event{Type: playback.EventStateChanged, State: playback.StateBuffering},
			want: "Buffering...",
		},
		{
			name: "unknown state",
			ev:   playback.Event{Type: playback.EventStateChanged},
			want: "Waiting for status...",
		},
		{
			name: "error",
			ev:   playback.Event{Type: playback.EventError, Err: errors.New("boom")},
			want: "Error: boom",
		},
		{
			name: "warning without cause",
			ev:   playback.Event{Type: playback.EventWarning},
			want: "Warning: unknown",
		},
		{
			name: "preset",
			ev:   playback.Event{Type: playback.EventUIUpdated, Preset: &preset},
			want: "Preset: Evening",
		},
		{
			name: "ui volume only",
			ev:   playback.Event{Type: playback.EventUIUpdated, Volume: 0.3},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EventText(tt.ev); got != tt.want {
				t.Fatalf("EventText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvents(t *testing.T) {
	scr := &recordingScreen{}
	h := Events(scr)

	h(playback.Event{Type: playback.EventStateChanged, State: playback.StatePaused})
	h(playback.Event{Type: playback.EventUIUpdated})
	Close(scr)

	if len(scr.msgs) != 1 || scr.msgs[0] != "Paused" {
		t.Fatalf("msgs = %v, want [Paused]", scr.msgs)
	}
	if scr.fini != 1 {
		t.Fatalf("fini = %d, want 1", scr.fini)
	}
}
