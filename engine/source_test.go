package engine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var id3Header = append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0}, 32)...)

func TestOpenSourceHTTP(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rain.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(id3Header)
	}))
	defer s.Close()

	rc, err := OpenSource(context.Background(), s.URL+"/rain.mp3")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	if !bytes.Equal(got, id3Header) {
		t.Fatalf("OpenSource() body mismatch")
	}

	_, err = OpenSource(context.Background(), s.URL+"/missing.mp3")
	require.ErrorIs(t, err, ErrBadStatus)
}

func TestOpenSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rain.mp3")
	require.NoError(t, os.WriteFile(path, id3Header, 0o644))

	rc, err := OpenSource(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, id3Header, got)

	_, err = OpenSource(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSniffMP3(t *testing.T) {
	tt := []struct {
		name    string
		in      []byte
		wantErr bool
	}{
		{name: "id3 tag", in: id3Header},
		{name: "frame sync", in: append([]byte{0xFF, 0xFB, 0x90, 0x00}, make([]byte, 16)...)},
		{name: "png", in: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), wantErr: true},
		{name: "empty", in: nil, wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			r, err := sniffMP3(bytes.NewReader(tc.in))
			if tc.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, len(tc.in), len(got), "sniffing must not consume the stream")
		})
	}
}

func TestDecodeMP3RejectsOtherFormats(t *testing.T) {
	_, err := DecodeMP3(bytes.NewReader([]byte("RIFF\x24\x00\x00\x00WAVEfmt ")))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestBytesToSamples(t *testing.T) {
	got := bytesToSamples([]byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x7F})
	require.Equal(t, []int16{1, -1, -32768}, got)
}
