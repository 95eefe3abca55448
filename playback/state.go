package playback

import "strings"

// State is the playback state of one sound.
type State int

const (
	StateUnknown State = iota
	StateStopped
	StateBuffering
	StatePlaying
	StatePausing
	StatePaused
	StateStopping
)

var stateNames = map[State]string{
	StateUnknown:   "unknown",
	StateStopped:   "stopped",
	StateBuffering: "buffering",
	StatePlaying:   "playing",
	StatePausing:   "pausing",
	StatePaused:    "paused",
	StateStopping:  "stopping",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[StateUnknown]
}

// ParseState maps a receiver state name to a State. Unrecognized names
// map to StateUnknown.
func ParseState(name string) State {
	name = strings.ToLower(strings.TrimSpace(name))
	for st, n := range stateNames {
		if n == name {
			return st
		}
	}
	return StateUnknown
}

// RepeatMode is the loop mode of the media engine.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
)
