package model

// Job is the queue payload for one dispatch attempt: everything the
// worker needs to send one message to one recipient without touching
// the database first. Jobs are ephemeral; the Message row is the
// durable record of the outcome.
type Job struct {
	ID          string `json:"id"`
	BroadcastID string `json:"broadcast_id"`
	WorkspaceID string `json:"workspace_id"`
	ContactID   string `json:"contact_id"`
	Phone       string `json:"phone"`
	Content     string `json:"content"`
	MediaURL    string `json:"media_url,omitempty"`
}

// Recipient is one (contact, address) pair in a launch request.
type Recipient struct {
	ContactID string `json:"contact_id"`
	Phone     string `json:"phone"`
}
