package adminapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/app"
	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/pipeline"
	"github.com/talkincode/chatgate/internal/provider"
	"github.com/talkincode/chatgate/internal/session"
	"github.com/talkincode/chatgate/pkg/common"
)

// GetDB returns the request-scoped database handle.
func GetDB(c echo.Context) *gorm.DB {
	return app.GDB()
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": "OK",
		"data": data,
	})
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":    code,
		"message": message,
		"detail":  detail,
	})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      "OK",
		"data":      data,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 20
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// failFromError maps domain errors onto HTTP responses so every handler
// reports the same taxonomy.
func failFromError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, provider.ErrInvalidPhone):
		return fail(c, http.StatusBadRequest, "INVALID_PHONE", "Phone number is not valid", nil)
	case errors.Is(err, session.ErrManualSetup):
		return fail(c, http.StatusConflict, "MANUAL_SETUP_REQUIRED", "Session is managed manually", nil)
	case errors.Is(err, session.ErrPairingUnavailable):
		return fail(c, http.StatusServiceUnavailable, "PAIRING_UNAVAILABLE", "Pairing credentials are not available, try again later", nil)
	case errors.Is(err, pipeline.ErrInvalidSessionBinding):
		return fail(c, http.StatusBadRequest, "INVALID_SESSION_BINDING", "Request does not resolve to a usable session", nil)
	case errors.Is(err, pipeline.ErrEmptyMessage):
		return fail(c, http.StatusBadRequest, "EMPTY_MESSAGE", "Message content is required", nil)
	case provider.IsUnreachable(err):
		return fail(c, http.StatusBadGateway, "PROVIDER_UNREACHABLE", "Messaging provider is unreachable", err.Error())
	case provider.IsRejected(err):
		return fail(c, http.StatusBadGateway, "PROVIDER_REJECTED", "Messaging provider rejected the request", err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
	default:
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected failure", err.Error())
	}
}

// writeOprLog records an operator action, best effort.
func writeOprLog(c echo.Context, action, desc string) {
	GetDB(c).Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprName:   currentUsername(c),
		OprIp:     c.RealIP(),
		OptAction: action,
		OptDesc:   desc,
		OptTime:   time.Now(),
	})
}
