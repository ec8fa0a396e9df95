package adminapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/webserver"
)

func registerContactRoutes() {
	webserver.ApiGET("/contacts", listContacts)
	webserver.ApiGET("/contacts/:address", getContact)
	webserver.ApiPOST("/contacts/agent-mode", postContactAgentMode)
}

func listContacts(c echo.Context) error {
	page, pageSize := parsePagination(c)

	filter := map[string]interface{}{}
	if state := c.QueryParam("agent_state"); state != "" {
		filter["agent_state"] = state
	}
	contacts, total, err := contactRepo.List(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return failFromError(c, err)
	}
	return paged(c, contacts, total, page, pageSize)
}

func getContact(c echo.Context) error {
	contact, err := contactRepo.GetByRemoteAddress(c.Request().Context(), c.Param("address"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found", nil)
	} else if err != nil {
		return failFromError(c, err)
	}
	return ok(c, contact)
}

// postContactAgentMode switches a contact between AI and human handling.
// The agent status is derived, never set directly.
func postContactAgentMode(c echo.Context) error {
	var payload struct {
		RemoteAddress string `json:"remote_address"`
		AgentState    string `json:"agent_state"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", nil)
	}
	if payload.RemoteAddress == "" {
		return fail(c, http.StatusBadRequest, "MISSING_ADDRESS", "remote_address is required", nil)
	}
	if payload.AgentState != domain.AgentStateAI && payload.AgentState != domain.AgentStateHuman {
		return fail(c, http.StatusBadRequest, "INVALID_STATE", "agent_state must be ai or human", nil)
	}

	if _, err := contactRepo.GetByRemoteAddress(c.Request().Context(), payload.RemoteAddress); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "CONTACT_NOT_FOUND", "Contact not found", nil)
	} else if err != nil {
		return failFromError(c, err)
	}

	if err := contactRepo.SetAgentMode(c.Request().Context(), payload.RemoteAddress, payload.AgentState); err != nil {
		return failFromError(c, err)
	}
	writeOprLog(c, "agent_mode", payload.RemoteAddress+" -> "+payload.AgentState)
	return ok(c, map[string]interface{}{
		"remote_address": payload.RemoteAddress,
		"agent_state":    payload.AgentState,
		"agent_status":   domain.DeriveAgentStatus(payload.AgentState),
	})
}
