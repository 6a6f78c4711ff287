package model

import "time"

// Workspace is the tenant boundary: one outbound channel, one billing
// eligibility flag. Read by the dispatcher before every send.
type Workspace struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Active           bool      `json:"active"`
	ChannelConnected bool      `json:"channel_connected"`
	ChannelEndpoint  string    `json:"channel_endpoint,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
