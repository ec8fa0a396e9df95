package adminapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/talkincode/chatgate/internal/app"
	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/webserver"
)

func registerWebhookRoutes() {
	webserver.PubPOST("/webhook", postWebhook)
}

// postWebhook ingests provider event batches. The shared token guards the
// public route; a bad token is the only full-request rejection besides an
// unreadable body, everything else degrades per event.
func postWebhook(c echo.Context) error {
	expected := app.GApp().Config().Provider.WebhookToken
	if expected != "" && c.Request().Header.Get("X-Webhook-Token") != expected {
		return fail(c, http.StatusUnauthorized, "INVALID_TOKEN", "Webhook token mismatch", nil)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 {
		return fail(c, http.StatusBadRequest, "EMPTY_BODY", "Request body is required", nil)
	}

	records, err := normalizer.Normalize(body, resolveWebhookSession(c, body))
	if err != nil {
		return fail(c, http.StatusBadRequest, "MALFORMED_BODY", "Body is not valid JSON", nil)
	}

	if err := pipe.ProcessRecords(c.Request().Context(), records); err != nil {
		zap.L().Error("adminapi: webhook batch had failures", zap.Error(err))
	}
	return ok(c, map[string]interface{}{"accepted": len(records)})
}

// resolveWebhookSession finds the session an envelope belongs to, first by
// the session_id query parameter, then by the payload's instance name.
// A nil result is acceptable; messages then carry no session binding.
func resolveWebhookSession(c echo.Context, body []byte) *domain.ChatSession {
	ctx := c.Request().Context()

	if sid := cast.ToInt64(c.QueryParam("session_id")); sid != 0 {
		if s, err := sessionRepo.GetByID(ctx, sid); err == nil {
			return s
		}
	}

	var probe struct {
		Instance string `json:"instance"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Instance != "" {
		var s domain.ChatSession
		err := GetDB(c).
			Where("provider_id = ? OR name = ?", probe.Instance, probe.Instance).
			First(&s).Error
		if err == nil {
			return &s
		}
	}
	return nil
}
