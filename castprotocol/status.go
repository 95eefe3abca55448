package castprotocol

// ReceiverStatus is the last known state of the receiver application.
type ReceiverStatus struct {
	AppID       string
	DisplayName string
	SessionID   string
	TransportID string // empty until the application is running
	Volume      float64
	Muted       bool
}

// Running reports whether the receiver application is up.
func (s ReceiverStatus) Running() bool {
	return s.TransportID != ""
}
