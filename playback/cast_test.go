package playback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ambientcast.app/ambientcast/internal/looper"
)

const testSoundNS = "urn:x-cast:app.ambientcast.sound"

func newTestCast(sound Sound) (*CastStrategy, *looper.Manual, *mockSession, *eventLog) {
	m := looper.NewManual()
	sess := &mockSession{}
	events := &eventLog{}
	s := NewCastStrategy(sound, sess, testSoundNS, m, WithEventHandler(events.handle))
	return s, m, sess, events
}

func TestCastCreateIsSentFirst(t *testing.T) {
	s, m, sess, _ := newTestCast(NewSound("rain", []string{"a.mp3"}, true))
	sess.On("Send", testSoundNS, mock.Anything).Return(nil)

	s.Play()
	m.RunPending()

	require.Len(t, sess.sent, 2)
	require.JSONEq(t, `{"soundKey":"rain","src":["a.mp3"],"isLooping":true,"volume":0,"action":"create"}`, sess.sent[0])
	require.JSONEq(t, `{"soundKey":"rain","src":["a.mp3"],"isLooping":true,"volume":0,"action":"play"}`, sess.sent[1])
}

func TestCastMessages(t *testing.T) {
	tt := []struct {
		name string
		call func(s *CastStrategy)
		want string
	}{
		{
			name: "volume update has no action",
			call: func(s *CastStrategy) { s.SetVolume(0.25) },
			want: `{"soundKey":"birds","src":["b1.mp3","b2.mp3"],"isLooping":false,"volume":0.25}`,
		},
		{
			name: "pause",
			call: func(s *CastStrategy) { s.Pause() },
			want: `{"soundKey":"birds","src":["b1.mp3","b2.mp3"],"isLooping":false,"volume":0,"action":"pause"}`,
		},
		{
			name: "stop",
			call: func(s *CastStrategy) { s.Stop() },
			want: `{"soundKey":"birds","src":["b1.mp3","b2.mp3"],"isLooping":false,"volume":0,"action":"stop"}`,
		},
		{
			name: "volume is clamped",
			call: func(s *CastStrategy) { s.SetVolume(3) },
			want: `{"soundKey":"birds","src":["b1.mp3","b2.mp3"],"isLooping":false,"volume":1}`,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			s, m, sess, _ := newTestCast(NewSound("birds", []string{"b1.mp3", "b2.mp3"}, false))
			sess.On("Send", testSoundNS, mock.Anything).Return(nil)

			tc.call(s)
			m.RunPending()

			require.Len(t, sess.sent, 2)
			require.JSONEq(t, tc.want, sess.sent[1])
		})
	}
}

func TestCastDuplicateVolumeIsSentOnce(t *testing.T) {
	s, m, sess, _ := newTestCast(NewSound("rain", nil, true))
	sess.On("Send", testSoundNS, mock.Anything).Return(nil)

	s.SetVolume(0.5)
	s.SetVolume(0.5)
	s.SetVolume(0)
	s.SetVolume(0)
	m.RunPending()

	// create, 0.5, 0
	require.Len(t, sess.sent, 3)
	sess.AssertNumberOfCalls(t, "Send", 3)
}

func TestCastVolumeCarriesIntoActions(t *testing.T) {
	s, m, sess, _ := newTestCast(NewSound("rain", nil, true))
	sess.On("Send", testSoundNS, mock.Anything).Return(nil)

	s.SetVolume(0.7)
	s.Play()
	m.RunPending()

	require.JSONEq(t, `{"soundKey":"rain","isLooping":true,"volume":0.7,"action":"play"}`, sess.sent[2])
}

func TestCastSendFailureIsWarning(t *testing.T) {
	s, m, sess, events := newTestCast(NewSound("rain", nil, true))
	sess.On("Send", testSoundNS, mock.Anything).Return(errors.New("socket closed"))

	s.Play()
	m.RunPending()

	warnings := events.ofType(EventWarning)
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		require.ErrorIs(t, w.Err, ErrChannelSend)
		require.Equal(t, "rain", w.SoundID)
	}
	require.Empty(t, events.ofType(EventError))
}
