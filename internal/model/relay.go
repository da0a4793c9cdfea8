package model

// RelayEvent is the pub/sub payload published after a capture is
// accepted. It is a freshness hint only: delivery is at-least-once and
// unordered, and consumers re-fetch the authoritative list rather
// than trusting the event content.
type RelayEvent struct {
	AccountID  string `json:"account_id"`
	ImageID    string `json:"image_id"`
	ContentKey string `json:"content_key"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
}
