package domain

import (
	"strings"
	"time"
)

// Session connection kinds.
const (
	KindStandard      = "standard"
	KindManagedManual = "managed-manual"
)

// Canonical session statuses. Provider state strings are mapped onto these
// by the provider package.
const (
	SessionUninitialized = "uninitialized"
	SessionCreated       = "created"
	SessionPairing       = "awaiting_pairing"
	SessionConnected     = "connected"
	SessionDisconnected  = "disconnected"
	SessionDeleted       = "deleted"
	SessionUnknown       = "unknown"
	SessionManualSetup   = "pending_manual"
)

// ChatSession binds one tenant phone identity to the messaging provider.
// ProviderID and ApiKey are set together on the first successful provider
// creation; before that ProviderID holds a local placeholder.
type ChatSession struct {
	ID             int64     `json:"id,string" gorm:"primaryKey"`
	TenantID       int64     `json:"tenant_id,string" gorm:"index"`
	Name           string    `json:"name" gorm:"index"`
	Phone          string    `json:"phone"`
	ConnectionKind string    `json:"connection_kind"`
	ProviderID     string    `json:"provider_id"`
	ApiKey         string    `json:"-"`
	OwnAddress     string    `json:"own_address"`
	Status         string    `json:"status"`
	PairingImage   string    `json:"pairing_image,omitempty"`
	PairingCode    string    `json:"pairing_code,omitempty"`
	PairingRaw     string    `json:"pairing_raw,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_session"
}

// OwnAddressFromPhone derives the session's own wire address from its phone
// number: digits only plus the provider's user-address suffix, the same shape
// the provider uses for remote JIDs.
func OwnAddressFromPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "@s.whatsapp.net"
}
