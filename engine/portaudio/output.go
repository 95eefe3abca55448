// Package portaudio plays engine PCM on the default audio device.
package portaudio

import (
	"sync"

	pa "github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

var ErrNotStarted = errors.New("portaudio stream not started")

// Initialize must be called once before the first Output is started.
func Initialize() error {
	return pa.Initialize()
}

// Terminate releases the PortAudio library.
func Terminate() {
	pa.Terminate()
}

// Output is a stereo int16 stream on the default device.
type Output struct {
	frames int
	buffer []int16

	mu     sync.Mutex
	stream *pa.Stream
}

// New returns an Output that writes framesPerBuffer stereo frames per
// Write.
func New(framesPerBuffer int) *Output {
	return &Output{
		frames: framesPerBuffer,
		buffer: make([]int16, framesPerBuffer*2),
	}
}

func (o *Output) Start(sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	stream, err := pa.OpenDefaultStream(0, 2, float64(sampleRate), o.frames, o.buffer)
	if err != nil {
		return errors.Wrap(err, "portaudio failed to open default stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return errors.Wrap(err, "portaudio failed to start stream")
	}

	o.stream = stream
	return nil
}

// Write copies samples into the stream buffer, padding with silence, and
// blocks until the device accepted it.
func (o *Output) Write(samples []int16) error {
	o.mu.Lock()
	stream := o.stream
	o.mu.Unlock()

	if stream == nil {
		return ErrNotStarted
	}

	n := copy(o.buffer, samples)
	clear(o.buffer[n:])

	return stream.Write()
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stream == nil {
		return nil
	}

	stream := o.stream
	o.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return errors.Wrap(err, "portaudio failed to stop stream")
	}
	return stream.Close()
}
