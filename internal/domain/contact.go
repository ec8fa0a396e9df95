package domain

import "time"

// Agent handling states for a contact.
const (
	AgentStateAI    = "ai"
	AgentStateHuman = "human"
)

// Agent statuses derived from the state.
const (
	AgentStatusFull = "full"
	AgentStatusHalf = "half"
)

// ChatContact is a remote party known to some session. Rows are upserted on
// every contact-update webhook and never deleted.
type ChatContact struct {
	ID            int64     `json:"id,string" gorm:"primaryKey"`
	RemoteAddress string    `json:"remote_address" gorm:"uniqueIndex"`
	DisplayName   string    `json:"display_name"`
	AvatarURL     string    `json:"avatar_url"`
	AgentState    string    `json:"agent_state"`
	AgentStatus   string    `json:"agent_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (ChatContact) TableName() string {
	return "chat_contact"
}

// DeriveAgentStatus maps an agent state to its default status.
func DeriveAgentStatus(state string) string {
	if state == AgentStateHuman {
		return AgentStatusHalf
	}
	return AgentStatusFull
}
