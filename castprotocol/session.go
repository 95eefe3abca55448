package castprotocol

import (
	"encoding/json"

	"github.com/vishen/go-chromecast/cast"
)

// MessageFunc receives the raw UTF-8 payload of an inbound message.
type MessageFunc func(payload []byte)

// Session is an established remote session that exchanges JSON messages
// on named channels. A Session is shared by every sound played on it.
type Session interface {
	// Send serializes payload and delivers it on namespace. Delivery is
	// fire-and-forget; a nil error only means the transport accepted it.
	Send(namespace string, payload cast.Payload) error
	// Subscribe registers fn for inbound messages on namespace.
	Subscribe(namespace string, fn MessageFunc) (unsubscribe func())
}

// RawPayload is an already encoded JSON message.
type RawPayload []byte

// SetRequestId implements cast.Payload. Raw payloads carry no request id.
func (RawPayload) SetRequestId(int) {}

// MarshalJSON returns the payload unchanged.
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(p).MarshalJSON()
}

var _ cast.Payload = RawPayload(nil)
