package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/webserver"
	"github.com/talkincode/chatgate/pkg/common"
)

func registerSessionRoutes() {
	webserver.ApiGET("/sessions", listSessions)
	webserver.ApiPOST("/sessions", createSession)
	webserver.ApiGET("/sessions/:id", getSession)
	webserver.ApiPOST("/sessions/:id/setup", postSessionSetup)
	webserver.ApiGET("/sessions/:id/pairing", getSessionPairing)
	webserver.ApiPOST("/sessions/:id/restart", postSessionRestart)
	webserver.ApiPOST("/sessions/:id/logout", postSessionLogout)
	webserver.ApiDELETE("/sessions/:id", deleteSession)
}

// listSessions returns sessions with a soft status reconcile: every listed
// session's status is refreshed from the provider, best effort, so the
// listing never fails because the provider is down.
func listSessions(c echo.Context) error {
	page, pageSize := parsePagination(c)

	filter := map[string]interface{}{}
	if kind := c.QueryParam("connection_kind"); kind != "" {
		filter["connection_kind"] = kind
	}
	sessions, total, err := sessionRepo.List(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return failFromError(c, err)
	}

	if c.QueryParam("reconcile") != "false" {
		for _, s := range sessions {
			manager.ReconcileStatus(c.Request().Context(), s)
		}
	}
	return paged(c, sessions, total, page, pageSize)
}

func getSession(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid session ID", nil)
	}
	s, err := sessionRepo.GetByID(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return failFromError(c, err)
	}
	return ok(c, s)
}

type sessionPayload struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	ConnectionKind string `json:"connection_kind"`
	TenantID       int64  `json:"tenant_id,string"`
}

// createSession stores the local record and upserts the tenant's partner
// entry. The provider is not contacted until setup is called.
func createSession(c echo.Context) error {
	var payload sessionPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse session parameters", nil)
	}
	if strings.TrimSpace(payload.Name) == "" || strings.TrimSpace(payload.Phone) == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "name and phone are required", nil)
	}
	kind := payload.ConnectionKind
	if kind == "" {
		kind = domain.KindStandard
	}
	if kind != domain.KindStandard && kind != domain.KindManagedManual {
		return fail(c, http.StatusBadRequest, "INVALID_KIND", "Unknown connection kind", nil)
	}
	tenantID := payload.TenantID
	if tenantID == 0 {
		tenantID = upsertPartnerForSession(c, &payload)
	}

	s := &domain.ChatSession{
		ID:             common.UUIDint64(),
		TenantID:       tenantID,
		Name:           payload.Name,
		Phone:          payload.Phone,
		ConnectionKind: kind,
		OwnAddress:     domain.OwnAddressFromPhone(payload.Phone),
		Status:         domain.SessionUninitialized,
	}
	if err := sessionRepo.Create(c.Request().Context(), s); err != nil {
		return failFromError(c, err)
	}
	writeOprLog(c, "session_create", "created session "+payload.Name)
	return ok(c, s)
}

// upsertPartnerForSession keeps the tenant contact book in step with the
// phone numbers sessions bind. Best effort; failures fall back to the
// default partner.
func upsertPartnerForSession(c echo.Context, payload *sessionPayload) int64 {
	db := GetDB(c)
	var partner domain.SysPartner
	err := db.Where("phone = ? OR mobile = ?", payload.Phone, payload.Phone).First(&partner).Error
	if err == nil {
		return partner.ID
	}
	partner = domain.SysPartner{
		ID:        common.UUIDint64(),
		Name:      payload.Name,
		Phone:     payload.Phone,
		Mobile:    payload.Phone,
		Remark:    "auto-registered from session",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(&partner).Error; err != nil {
		zap.L().Warn("adminapi: partner upsert failed", zap.Error(err))
		return 0
	}
	return partner.ID
}

// postSessionSetup registers the session with the provider.
func postSessionSetup(c echo.Context) error {
	s, errResp := loadSession(c)
	if s == nil {
		return errResp
	}
	if err := manager.Setup(c.Request().Context(), s); err != nil {
		return failFromError(c, err)
	}
	writeOprLog(c, "session_setup", "provider instance created for "+s.Name)
	return ok(c, s)
}

// getSessionPairing runs the pairing fallback chain and returns whatever
// credentials it produced.
func getSessionPairing(c echo.Context) error {
	s, errResp := loadSession(c)
	if s == nil {
		return errResp
	}
	p, err := manager.Pairing(c.Request().Context(), s)
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, map[string]interface{}{
		"qr_image":     p.QRImage,
		"pairing_code": p.PairingCode,
		"raw_code":     p.RawCode,
		"status":       s.Status,
	})
}

func postSessionRestart(c echo.Context) error {
	s, errResp := loadSession(c)
	if s == nil {
		return errResp
	}
	if err := manager.Restart(c.Request().Context(), s); err != nil {
		return failFromError(c, err)
	}
	writeOprLog(c, "session_restart", "restarted "+s.Name)
	return ok(c, map[string]interface{}{"restarted": true})
}

// postSessionLogout signs the remote device out but keeps the local record.
func postSessionLogout(c echo.Context) error {
	s, errResp := loadSession(c)
	if s == nil {
		return errResp
	}
	if err := manager.Logout(c.Request().Context(), s); err != nil {
		return failFromError(c, err)
	}
	writeOprLog(c, "session_logout", "logged out "+s.Name)
	return ok(c, map[string]interface{}{"logged_out": true})
}

// deleteSession tears the session down provider-side (best effort) and
// removes the local record.
func deleteSession(c echo.Context) error {
	s, errResp := loadSession(c)
	if s == nil {
		return errResp
	}
	if err := manager.Teardown(c.Request().Context(), s); err != nil {
		return failFromError(c, err)
	}
	writeOprLog(c, "session_delete", "removed "+s.Name)
	return ok(c, map[string]interface{}{"deleted": true})
}

func loadSession(c echo.Context) (*domain.ChatSession, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return nil, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid session ID", nil)
	}
	s, err := sessionRepo.GetByID(c.Request().Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return nil, failFromError(c, err)
	}
	return s, nil
}
