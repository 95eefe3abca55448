package castprotocol

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// RemoteEvent is a message exchanged on the event channel. Kind is the
// discriminator written to the "kind" field of the envelope.
type RemoteEvent interface {
	Kind() string
}

// validator is implemented by events whose fields carry constraints beyond
// their JSON types.
type validator interface {
	validate() error
}

func checkSoundID(id string) error {
	if id == "" {
		return errors.New("missing soundId")
	}
	return nil
}

func checkVolume(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("volume %v out of range [0, 1]", v)
	}
	return nil
}

const (
	KindGetAccessToken             = "GetAccessToken"
	KindGetAccessTokenResponse     = "GetAccessTokenResponse"
	KindSetSoundFadeInDuration     = "SetSoundFadeInDuration"
	KindSetSoundFadeOutDuration    = "SetSoundFadeOutDuration"
	KindEnableSoundPremiumSegments = "EnableSoundPremiumSegments"
	KindSetSoundAudioBitrate       = "SetSoundAudioBitrate"
	KindSetSoundVolume             = "SetSoundVolume"
	KindPlaySound                  = "PlaySound"
	KindPauseSound                 = "PauseSound"
	KindStopSound                  = "StopSound"
	KindSoundStateChanged          = "SoundStateChanged"
	KindGlobalUiUpdated            = "GlobalUiUpdated"
	KindSoundUiUpdated             = "SoundUiUpdated"
	KindPresetNameUpdated          = "PresetNameUpdated"
)

// GetAccessToken is sent by the receiver when it needs credentials to
// fetch sound segments.
type GetAccessToken struct{}

func (GetAccessToken) Kind() string { return KindGetAccessToken }

type GetAccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func (GetAccessTokenResponse) Kind() string { return KindGetAccessTokenResponse }

type SetSoundFadeInDuration struct {
	DurationMillis int64 `json:"durationMillis"`
}

func (SetSoundFadeInDuration) Kind() string { return KindSetSoundFadeInDuration }

type SetSoundFadeOutDuration struct {
	DurationMillis int64 `json:"durationMillis"`
}

func (SetSoundFadeOutDuration) Kind() string { return KindSetSoundFadeOutDuration }

type EnableSoundPremiumSegments struct {
	IsEnabled bool `json:"isEnabled"`
}

func (EnableSoundPremiumSegments) Kind() string { return KindEnableSoundPremiumSegments }

type SetSoundAudioBitrate struct {
	Bitrate string `json:"bitrate"`
}

func (SetSoundAudioBitrate) Kind() string { return KindSetSoundAudioBitrate }

type SetSoundVolume struct {
	SoundID string  `json:"soundId"`
	Volume  float64 `json:"volume"`
}

func (SetSoundVolume) Kind() string { return KindSetSoundVolume }

func (e SetSoundVolume) validate() error {
	if err := checkSoundID(e.SoundID); err != nil {
		return err
	}
	return checkVolume(e.Volume)
}

type PlaySound struct {
	SoundID string `json:"soundId"`
}

func (PlaySound) Kind() string { return KindPlaySound }

func (e PlaySound) validate() error { return checkSoundID(e.SoundID) }

// PauseSound pauses a sound; Immediate skips the fade out.
type PauseSound struct {
	SoundID   string `json:"soundId"`
	Immediate bool   `json:"immediate"`
}

func (PauseSound) Kind() string { return KindPauseSound }

func (e PauseSound) validate() error { return checkSoundID(e.SoundID) }

// StopSound stops a sound; Immediate skips the fade out.
type StopSound struct {
	SoundID   string `json:"soundId"`
	Immediate bool   `json:"immediate"`
}

func (StopSound) Kind() string { return KindStopSound }

func (e StopSound) validate() error { return checkSoundID(e.SoundID) }

// SoundStateChanged reports the receiver side state of one sound, e.g.
// "buffering", "playing", "pausing", "paused", "stopping", "stopped".
type SoundStateChanged struct {
	SoundID string `json:"soundId"`
	State   string `json:"state"`
}

func (SoundStateChanged) Kind() string { return KindSoundStateChanged }

func (e SoundStateChanged) validate() error { return checkSoundID(e.SoundID) }

type GlobalUiUpdated struct {
	State  string  `json:"state"`
	Volume float64 `json:"volume"`
}

func (GlobalUiUpdated) Kind() string { return KindGlobalUiUpdated }

func (e GlobalUiUpdated) validate() error { return checkVolume(e.Volume) }

type SoundUiUpdated struct {
	SoundID string  `json:"soundId"`
	State   string  `json:"state"`
	Volume  float64 `json:"volume"`
}

func (SoundUiUpdated) Kind() string { return KindSoundUiUpdated }

func (e SoundUiUpdated) validate() error {
	if err := checkSoundID(e.SoundID); err != nil {
		return err
	}
	return checkVolume(e.Volume)
}

// PresetNameUpdated carries the active preset name; nil when the current
// sounds match no saved preset.
type PresetNameUpdated struct {
	Name *string `json:"name"`
}

func (PresetNameUpdated) Kind() string { return KindPresetNameUpdated }
