// Package wssession carries cast namespaces over a single websocket. It
// is used with development and browser receivers that cannot speak the
// Cast v2 socket protocol.
package wssession

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/cast"

	"ambientcast.app/ambientcast/castprotocol"
)

const (
	pingInterval = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// frame is the envelope of every websocket message.
type frame struct {
	Namespace string          `json:"namespace"`
	Data      json.RawMessage `json:"data"`
}

type Option func(*Session)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// Session implements castprotocol.Session.
type Session struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	subsMu  sync.Mutex
	subs    map[string]map[int]castprotocol.MessageFunc
	nextSub int

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ castprotocol.Session = (*Session)(nil)

// Dial connects to a websocket receiver at url.
func Dial(ctx context.Context, url string, header http.Header, opts ...Option) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "wssession failed to dial %s", url)
	}
	return newSession(conn, opts...), nil
}

func newSession(conn *websocket.Conn, opts ...Option) *Session {
	s := &Session{
		conn:    conn,
		log:     zerolog.Nop(),
		subs:    make(map[string]map[int]castprotocol.MessageFunc),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.readLoop()
	go s.pingLoop()
	return s
}

// Send frames payload for namespace and writes it.
func (s *Session) Send(namespace string, payload cast.Payload) error {
	select {
	case <-s.done:
		return castprotocol.ErrNotConnected
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "wssession failed to marshal payload")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Wrap(err, "wssession failed to set write deadline")
	}
	if err := s.conn.WriteJSON(frame{Namespace: namespace, Data: data}); err != nil {
		return errors.Wrap(err, "wssession failed to write frame")
	}

	s.log.Debug().Str("Method", "Send").Str("Namespace", namespace).RawJSON("Data", data).Msg("frame sent")
	return nil
}

func (s *Session) Subscribe(namespace string, fn castprotocol.MessageFunc) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.subs[namespace] == nil {
		s.subs[namespace] = make(map[int]castprotocol.MessageFunc)
	}
	s.subs[namespace][id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs[namespace], id)
	}
}

// Done is closed when the connection is gone, whichever side closed it.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close sends a close frame and tears the connection down.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		s.writeMu.Unlock()

		err = s.conn.Close()
		<-s.done
	})
	return err
}

func (s *Session) readLoop() {
	defer close(s.done)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.log.Warn().Str("Method", "readLoop").Err(err).Msg("websocket read failed")
				s.conn.Close()
			}
			return
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Namespace == "" {
			s.log.Warn().Str("Method", "readLoop").Bytes("Frame", msg).Msg("dropping malformed frame")
			continue
		}
		s.dispatch(f)
	}
}

func (s *Session) dispatch(f frame) {
	s.subsMu.Lock()
	fns := make([]castprotocol.MessageFunc, 0, len(s.subs[f.Namespace]))
	for _, fn := range s.subs[f.Namespace] {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(f.Data)
	}
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
