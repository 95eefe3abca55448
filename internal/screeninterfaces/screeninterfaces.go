package screeninterfaces

import (
	"strings"

	"ambientcast.app/ambientcast/playback"
)

// Screen interface
type Screen interface {
	EmitMsg(string)
	Fini()
}

// Emit .
func Emit(scr Screen, s string) {
	scr.EmitMsg(s)
}

// Close .
func Close(scr Screen) {
	scr.Fini()
}

// Events returns a handler that emits the status text of every event
// to scr.
func Events(scr Screen) playback.EventHandler {
	return func(ev playback.Event) {
		if msg := EventText(ev); msg != "" {
			Emit(scr, msg)
		}
	}
}

// EventText is the status line for ev. It is empty for events that do
// not change the status line.
func EventText(ev playback.Event) string {
	switch ev.Type {
	case playback.EventStateChanged:
		return StateText(ev.State)
	case playback.EventError:
		return "Error: " + errText(ev.Err)
	case playback.EventWarning:
		return "Warning: " + errText(ev.Err)
	case playback.EventUIUpdated:
		if ev.Preset != nil {
			return "Preset: " + *ev.Preset
		}
	}
	return ""
}

// StateText is the status line for st.
func StateText(st playback.State) string {
	switch st {
	case playback.StateBuffering:
		return "Buffering..."
	case playback.StateUnknown:
		return "Waiting for status..."
	}
	s := st.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

func errText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
