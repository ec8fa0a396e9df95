package domain

import "time"

// Message roles.
const (
	RoleOperator = "operator" // typed by a human operator
	RoleBot      = "bot"      // produced by the automation engine
	RoleInbound  = "inbound"  // received from the remote party
)

// Message statuses.
const (
	MessageReceived = "received"
	MessageSent     = "sent"
)

// ChatMessage is one inbound or outbound communication unit. Rows are
// written once and never updated.
type ChatMessage struct {
	ID             int64     `json:"id,string" gorm:"primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"index"`
	SessionID      int64     `json:"session_id,string" gorm:"index"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Content        string    `json:"content"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp" gorm:"index"`
	ProviderMsgID  string    `json:"provider_msg_id" gorm:"index"`
	Envelope       string    `json:"-"` // raw provider payload, kept for audit
	CreatedAt      time.Time `json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_message"
}
