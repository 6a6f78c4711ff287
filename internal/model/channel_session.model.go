package model

import "time"

// ChannelStatus is the connection state of a workspace's messaging
// channel. The in-memory session owns all writes; external collaborators
// only read the persisted record (UI polling).
type ChannelStatus string

const (
	ChannelStatusDisconnected ChannelStatus = "disconnected"
	ChannelStatusConnecting   ChannelStatus = "connecting"
	ChannelStatusQRReady      ChannelStatus = "qr_ready"
	ChannelStatusConnected    ChannelStatus = "connected"
)

// Live reports whether a session in this state still owns the channel.
// A connect request against a live session must reuse it rather than
// spawn a second competing connection.
func (s ChannelStatus) Live() bool {
	return s == ChannelStatusConnecting || s == ChannelStatusQRReady || s == ChannelStatusConnected
}

// ChannelSession is the persisted mirror of the per-workspace session:
// status and pairing code survive a process restart, and Credentials
// lets a restarted process reconnect without re-pairing.
type ChannelSession struct {
	WorkspaceID     string        `json:"workspace_id"`
	Status          ChannelStatus `json:"status"`
	PairingCode     string        `json:"pairing_code,omitempty"`
	Credentials     []byte        `json:"-"`
	EndpointID      string        `json:"endpoint_id,omitempty"`
	LastConnectedAt *time.Time    `json:"last_connected_at,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
