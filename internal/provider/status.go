package provider

import (
	"strings"

	"github.com/talkincode/chatgate/internal/domain"
)

// stateTable maps provider state strings to canonical session statuses.
// The provider varies casing and wording across endpoints, so everything
// goes through this one table instead of ad hoc string checks.
var stateTable = map[string]string{
	"open":       domain.SessionConnected,
	"connected":  domain.SessionConnected,
	"connecting": domain.SessionPairing,
	"pairing":    domain.SessionPairing,
	"qrcode":     domain.SessionPairing,
	"created":    domain.SessionCreated,
	"close":      domain.SessionDisconnected,
	"closed":     domain.SessionDisconnected,
	"refused":    domain.SessionDisconnected,
	"logout":     domain.SessionDisconnected,
	"deleted":    domain.SessionDeleted,
}

// MapStatus converts a raw provider state string to a canonical status.
// Unrecognized values map to SessionUnknown.
func MapStatus(raw string) string {
	if s, ok := stateTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return domain.SessionUnknown
}

// extractState pulls the state string out of a provider payload. Different
// endpoints nest it as instance.state, state or status.
func extractState(payload map[string]interface{}) string {
	if inst, ok := payload["instance"].(map[string]interface{}); ok {
		if s, ok := inst["state"].(string); ok && s != "" {
			return s
		}
		if s, ok := inst["status"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := payload["state"].(string); ok && s != "" {
		return s
	}
	if s, ok := payload["status"].(string); ok && s != "" {
		return s
	}
	return ""
}
