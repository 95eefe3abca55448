package engine

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// Channels is the channel count of every decoded PCM buffer.
const Channels = 2

// PCM is interleaved 16-bit stereo audio.
type PCM struct {
	SampleRate int
	Samples    []int16
}

// Frames returns the number of stereo frames in p.
func (p PCM) Frames() int {
	return len(p.Samples) / Channels
}

// DecodeFunc turns an encoded stream into PCM.
type DecodeFunc func(r io.Reader) (PCM, error)

// DecodeMP3 decodes a whole MP3 stream. go-mp3 always produces 16-bit
// little endian stereo.
func DecodeMP3(r io.Reader) (PCM, error) {
	r, err := sniffMP3(r)
	if err != nil {
		return PCM{}, err
	}

	d, err := mp3.NewDecoder(r)
	if err != nil {
		return PCM{}, fmt.Errorf("decodeMP3 failed to create decoder: %w", err)
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("decodeMP3 failed to decode: %w", err)
	}

	return PCM{
		SampleRate: d.SampleRate(),
		Samples:    bytesToSamples(raw),
	}, nil
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}
