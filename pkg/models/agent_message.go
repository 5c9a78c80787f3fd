package models

import "time"

// AgentMessage is inter-agent mail routed by the Agent Graph (§3, §4.6).
// Unread messages prevent the recipient from reaching the finished
// terminal state.
type AgentMessage struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
	Read   bool      `json:"read"`
}
