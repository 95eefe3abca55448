package castprotocol

import (
	"sync/atomic"

	"github.com/vishen/go-chromecast/cast"
)

// Action is the lifecycle verb of a sound control message. The empty
// Action marks a volume-only update and is omitted from the wire.
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionPlay   Action = "play"
	ActionPause  Action = "pause"
	ActionStop   Action = "stop"
)

// ControlMessage is the outbound sound control payload. Only tagged
// fields reach the wire.
type ControlMessage struct {
	SoundKey  string   `json:"soundKey"`
	Src       []string `json:"src,omitempty"`
	IsLooping bool     `json:"isLooping"`
	Volume    float64  `json:"volume"`
	Action    Action   `json:"action,omitempty"`

	RequestId int `json:"-"`
}

// SetRequestId implements cast.Payload.
func (m *ControlMessage) SetRequestId(id int) {
	m.RequestId = id
}

var _ cast.Payload = (*ControlMessage)(nil)

// Request ID counter for messages sent by this process.
var requestIDCounter int32

func nextRequestID() int {
	return int(atomic.AddInt32(&requestIDCounter, 1))
}
