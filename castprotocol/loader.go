package castprotocol

import (
	"encoding/json"
	"fmt"

	"github.com/vishen/go-chromecast/cast"
)

const (
	defaultSender = "sender-0"
	defaultRecv   = "receiver-0"

	namespaceConn = "urn:x-cast:com.google.cast.tp.connection"
	namespaceRecv = "urn:x-cast:com.google.cast.receiver"
)

// headerPayload is a bare typed request such as CONNECT or GET_STATUS.
type headerPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId,omitempty"`
}

func (p *headerPayload) SetRequestId(id int) {
	p.RequestId = id
}

// launchPayload asks the receiver to start an application.
type launchPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId"`
	AppId     string `json:"appId"`
}

func (p *launchPayload) SetRequestId(id int) {
	p.RequestId = id
}

// stopPayload asks the receiver to end an application session.
type stopPayload struct {
	Type      string `json:"type"`
	RequestId int    `json:"requestId"`
	SessionId string `json:"sessionId"`
}

func (p *stopPayload) SetRequestId(id int) {
	p.RequestId = id
}

var (
	_ cast.Payload = (*headerPayload)(nil)
	_ cast.Payload = (*launchPayload)(nil)
	_ cast.Payload = (*stopPayload)(nil)
)

// launchReceiverApp sends a LAUNCH for appID to the platform receiver.
func launchReceiverApp(conn cast.Conn, appID string) error {
	requestID := nextRequestID()
	payload := &launchPayload{Type: "LAUNCH", AppId: appID}
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, defaultRecv, namespaceRecv); err != nil {
		return fmt.Errorf("send launch: %w", err)
	}
	return nil
}

// stopReceiverApp ends the application session identified by sessionID.
func stopReceiverApp(conn cast.Conn, sessionID string) error {
	requestID := nextRequestID()
	payload := &stopPayload{Type: "STOP", SessionId: sessionID}
	payload.SetRequestId(requestID)

	if err := conn.Send(requestID, payload, defaultSender, defaultRecv, namespaceRecv); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	return nil
}

// connectTransport opens the virtual connection to a running application.
func connectTransport(conn cast.Conn, transportID string) error {
	requestID := nextRequestID()
	payload := &headerPayload{Type: "CONNECT"}

	if err := conn.Send(requestID, payload, defaultSender, transportID, namespaceConn); err != nil {
		return fmt.Errorf("send connect: %w", err)
	}
	return nil
}

// requestReceiverStatus asks the platform receiver for a RECEIVER_STATUS.
func requestReceiverStatus(conn cast.Conn) error {
	requestID := nextRequestID()
	payload := &headerPayload{Type: "GET_STATUS"}

	if err := conn.Send(requestID, payload, defaultSender, defaultRecv, namespaceRecv); err != nil {
		return fmt.Errorf("send get status: %w", err)
	}
	return nil
}

type receiverStatusMessage struct {
	Type   string `json:"type"`
	Status struct {
		Applications []struct {
			AppId       string `json:"appId"`
			DisplayName string `json:"displayName"`
			SessionId   string `json:"sessionId"`
			TransportId string `json:"transportId"`
		} `json:"applications"`
		Volume struct {
			Level *float64 `json:"level"`
			Muted *bool    `json:"muted"`
		} `json:"volume"`
	} `json:"status"`
}

// parseReceiverStatus extracts the status of appID from a RECEIVER_STATUS
// payload. ok is false for any other message type.
func parseReceiverStatus(payload []byte, appID string) (status ReceiverStatus, ok bool, err error) {
	var msg receiverStatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ReceiverStatus{}, false, fmt.Errorf("parse receiver status: %w", err)
	}

	if msg.Type != "RECEIVER_STATUS" {
		return ReceiverStatus{}, false, nil
	}

	if msg.Status.Volume.Level != nil {
		status.Volume = *msg.Status.Volume.Level
	}
	if msg.Status.Volume.Muted != nil {
		status.Muted = *msg.Status.Volume.Muted
	}

	for _, app := range msg.Status.Applications {
		if app.AppId != appID {
			continue
		}
		status.AppID = app.AppId
		status.DisplayName = app.DisplayName
		status.SessionID = app.SessionId
		status.TransportID = app.TransportId
		break
	}

	return status, true, nil
}
