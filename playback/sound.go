package playback

// Sound describes one ambient sound. It is immutable once built.
type Sound struct {
	id       string
	sources  []string
	loopable bool
}

// NewSound copies sources, so later changes by the caller are not seen.
func NewSound(id string, sources []string, loopable bool) Sound {
	return Sound{
		id:       id,
		sources:  append([]string(nil), sources...),
		loopable: loopable,
	}
}

func (s Sound) ID() string {
	return s.id
}

// Sources returns the ordered source locators (file paths or URLs).
func (s Sound) Sources() []string {
	return append([]string(nil), s.sources...)
}

func (s Sound) IsLoopable() bool {
	return s.loopable
}

// ClampVolume bounds v to [0, 1].
func ClampVolume(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
