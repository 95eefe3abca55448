package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
	pb "github.com/vishen/go-chromecast/cast/proto"
	"golang.org/x/time/rate"
)

const (
	defaultCastPort = 8009

	connectAttempts    = 5
	connectRetryEvery  = 4 * time.Second
	launchTimeout      = 20 * time.Second
	statusPollInterval = 500 * time.Millisecond
)

// CastClient is a Session backed by a Cast receiver application.
type CastClient struct {
	app   *application.Application
	conn  cast.Conn
	appID string

	mu        sync.RWMutex
	host      string
	port      int
	connected bool
	statusCh  chan struct{}

	statusMu sync.RWMutex
	status   ReceiverStatus

	subsMu  sync.RWMutex
	subs    map[string]map[int]MessageFunc
	nextSub int

	connectLimiter *rate.Limiter

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

var _ Session = (*CastClient)(nil)

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastClient) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// NewCastClient prepares a client for the receiver at deviceAddr
// ("host", "host:port" or a URL) that will run the application appID.
func NewCastClient(deviceAddr, appID string) (*CastClient, error) {
	host, port, err := splitDeviceAddr(deviceAddr)
	if err != nil {
		return nil, err
	}

	conn := cast.NewConnection()
	app := application.NewApplication(
		application.WithConnection(conn),
		application.WithConnectionRetries(3),
	)

	return newCastClient(app, conn, host, port, appID), nil
}

func newCastClient(app *application.Application, conn cast.Conn, host string, port int, appID string) *CastClient {
	c := &CastClient{
		app:            app,
		conn:           conn,
		appID:          appID,
		host:           host,
		port:           port,
		statusCh:       make(chan struct{}, 1),
		subs:           make(map[string]map[int]MessageFunc),
		connectLimiter: rate.NewLimiter(rate.Every(connectRetryEvery), 1),
	}
	if app != nil {
		app.AddMessageFunc(c.dispatch)
	}
	return c
}

func splitDeviceAddr(deviceAddr string) (string, int, error) {
	if u, err := url.Parse(deviceAddr); err == nil && u.Host != "" {
		deviceAddr = u.Host
	}

	host, portStr, err := net.SplitHostPort(deviceAddr)
	if err != nil {
		// No port given.
		host, portStr = deviceAddr, ""
	}
	if host == "" {
		return "", 0, fmt.Errorf("parse device addr %q: empty host", deviceAddr)
	}

	port := defaultCastPort
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return "", 0, fmt.Errorf("parse device addr %q: %w", deviceAddr, err)
		}
	}

	return host, port, nil
}

// Connect establishes the connection, launches the receiver application
// and opens a virtual connection to it. Wake-up timeouts are retried.
func (c *CastClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.app == nil {
		return fmt.Errorf("chromecast connect: app is nil")
	}

	c.Log().Debug().Str("Method", "Connect").Str("Host", c.host).Int("Port", c.port).Str("AppID", c.appID).Msg("connecting")

	var lastErr error
	for attempt := range connectAttempts {
		if err := c.connectLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("chromecast connect: %w", err)
		}

		lastErr = c.app.Start(c.host, c.port)
		if lastErr == nil {
			break
		}
		if !isTimeoutError(lastErr) {
			break
		}
		c.Log().Debug().Str("Method", "Connect").Int("Attempt", attempt).Err(lastErr).Msg("timeout, receiver may be waking up, retrying...")
	}
	if lastErr != nil {
		c.Log().Error().Str("Method", "Connect").Err(lastErr).Msg("connection failed")
		return fmt.Errorf("chromecast connect: %w", lastErr)
	}

	if err := launchReceiverApp(c.conn, c.appID); err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("launch failed")
		return fmt.Errorf("chromecast connect: %w", err)
	}

	status, err := c.waitRunning(ctx)
	if err != nil {
		c.Log().Error().Str("Method", "Connect").Err(err).Msg("receiver app did not start")
		return fmt.Errorf("chromecast connect: %w", err)
	}

	if err := connectTransport(c.conn, status.TransportID); err != nil {
		return fmt.Errorf("chromecast connect: %w", err)
	}

	c.connected = true
	c.Log().Debug().Str("Method", "Connect").Str("TransportID", status.TransportID).Msg("connected successfully")
	return nil
}

// waitRunning polls the receiver status until appID reports a transport.
// It runs with c.mu held, so status updates must not take c.mu.
func (c *CastClient) waitRunning(ctx context.Context) (ReceiverStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		if st := c.loadStatus(); st.Running() {
			return st, nil
		}

		if err := requestReceiverStatus(c.conn); err != nil {
			c.Log().Debug().Str("Method", "waitRunning").Err(err).Msg("status request failed")
		}

		select {
		case <-ctx.Done():
			return ReceiverStatus{}, fmt.Errorf("wait for %s: %w", c.appID, ctx.Err())
		case <-c.statusCh:
		case <-ticker.C:
		}
	}
}

// Send delivers payload on namespace to the receiver application.
func (c *CastClient) Send(namespace string, payload cast.Payload) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	st := c.loadStatus()
	requestID := nextRequestID()
	c.Log().Debug().Str("Method", "Send").Str("Namespace", namespace).Int("RequestID", requestID).Msg("sending")

	if err := c.conn.Send(requestID, payload, defaultSender, st.TransportID, namespace); err != nil {
		c.Log().Error().Str("Method", "Send").Str("Namespace", namespace).Err(err).Msg("failed")
		return fmt.Errorf("send on %s: %w", namespace, err)
	}
	return nil
}

// Subscribe registers fn for messages received on namespace.
func (c *CastClient) Subscribe(namespace string, fn MessageFunc) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSub++
	id := c.nextSub
	if c.subs[namespace] == nil {
		c.subs[namespace] = make(map[int]MessageFunc)
	}
	c.subs[namespace][id] = fn

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs[namespace], id)
	}
}

// dispatch routes every inbound cast message. It runs on the
// go-chromecast receive goroutine.
func (c *CastClient) dispatch(msg *pb.CastMessage) {
	if msg == nil {
		return
	}

	namespace := msg.GetNamespace()
	payload := []byte(msg.GetPayloadUtf8())

	if namespace == namespaceRecv {
		st, ok, err := parseReceiverStatus(payload, c.appID)
		if err != nil {
			c.Log().Debug().Str("Method", "dispatch").Err(err).Msg("bad receiver message")
		}
		if ok {
			c.storeStatus(st)
		}
		return
	}

	c.subsMu.RLock()
	fns := make([]MessageFunc, 0, len(c.subs[namespace]))
	for _, fn := range c.subs[namespace] {
		fns = append(fns, fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range fns {
		fn(payload)
	}
}

func (c *CastClient) storeStatus(st ReceiverStatus) {
	c.statusMu.Lock()
	c.status = st
	c.statusMu.Unlock()

	select {
	case c.statusCh <- struct{}{}:
	default:
	}
}

func (c *CastClient) loadStatus() ReceiverStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// Status returns the last receiver status seen on the connection.
func (c *CastClient) Status() ReceiverStatus {
	return c.loadStatus()
}

// Close disconnects. When stopApp is set the receiver application is
// stopped first, which invalidates every sound played on this session.
func (c *CastClient) Close(stopApp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Log().Debug().Str("Method", "Close").Bool("StopApp", stopApp).Msg("closing connection")

	if stopApp {
		if st := c.loadStatus(); st.SessionID != "" {
			if err := stopReceiverApp(c.conn, st.SessionID); err != nil {
				c.Log().Warn().Str("Method", "Close").Err(err).Msg("stop receiver app failed")
			}
		}
	}

	c.connected = false
	err := c.app.Close(false)
	if err != nil {
		c.Log().Error().Str("Method", "Close").Err(err).Msg("failed")
	}
	return err
}

// IsConnected returns whether client is connected.
func (c *CastClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Host returns the hostname of the receiver.
func (c *CastClient) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

// isTimeoutError checks if an error is a timeout/deadline exceeded error.
// This typically happens when the receiver needs to wake from sleep.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
