package wssession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"ambientcast.app/ambientcast/castprotocol"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func startWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSendFramesPayload(t *testing.T) {
	got := make(chan frame, 1)
	url := startWSServer(t, func(conn *websocket.Conn) {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		got <- f
		conn.ReadMessage()
	})

	s := dial(t, url)
	msg := &castprotocol.ControlMessage{SoundKey: "rain", IsLooping: true, Volume: 0.5, Action: castprotocol.ActionPlay}
	require.NoError(t, s.Send("urn:x-cast:app.ambientcast.sound", msg))

	select {
	case f := <-got:
		require.Equal(t, "urn:x-cast:app.ambientcast.sound", f.Namespace)
		require.JSONEq(t, `{"soundKey":"rain","isLooping":true,"volume":0.5,"action":"play"}`, string(f.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestSubscribeDispatchesByNamespace(t *testing.T) {
	release := make(chan struct{})
	url := startWSServer(t, func(conn *websocket.Conn) {
		<-release
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"namespace":"urn:other","data":{"x":1}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"namespace":"urn:x-cast:app.ambientcast.event","data":{"kind":"SoundStateChanged","soundId":"rain","state":"playing"}}`))
		conn.ReadMessage()
	})

	s := dial(t, url)
	got := make(chan []byte, 4)
	s.Subscribe("urn:x-cast:app.ambientcast.event", func(payload []byte) { got <- payload })
	close(release)

	select {
	case payload := <-got:
		var ev map[string]any
		require.NoError(t, json.Unmarshal(payload, &ev))
		require.Equal(t, "SoundStateChanged", ev["kind"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	require.Empty(t, got)
}

func TestUnsubscribe(t *testing.T) {
	release := make(chan struct{})
	url := startWSServer(t, func(conn *websocket.Conn) {
		<-release
		conn.WriteMessage(websocket.TextMessage, []byte(`{"namespace":"urn:a","data":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"namespace":"urn:b","data":2}`))
		conn.ReadMessage()
	})

	s := dial(t, url)
	gotA := make(chan []byte, 1)
	gotB := make(chan []byte, 1)
	unsubscribe := s.Subscribe("urn:a", func(payload []byte) { gotA <- payload })
	s.Subscribe("urn:b", func(payload []byte) { gotB <- payload })
	unsubscribe()
	close(release)

	select {
	case payload := <-gotB:
		require.Equal(t, "2", string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	require.Empty(t, gotA)
}

func TestSendAfterPeerClosed(t *testing.T) {
	url := startWSServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
	})

	s := dial(t, url)
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not done after peer closed")
	}

	err := s.Send("urn:a", castprotocol.RawPayload(`{}`))
	require.ErrorIs(t, err, castprotocol.ErrNotConnected)
}

func TestCloseIsIdempotent(t *testing.T) {
	url := startWSServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	s := dial(t, url)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Close()")
	}
}
