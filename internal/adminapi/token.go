package adminapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/webserver"
	"github.com/talkincode/chatgate/pkg/common"
)

func registerTokenRoutes() {
	webserver.ApiPOST("/token", postToken)
}

// postToken authenticates an operator and issues a JWT for the admin API.
func postToken(c echo.Context) error {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", nil)
	}
	if strings.TrimSpace(payload.Username) == "" || payload.Password == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "username and password are required", nil)
	}

	var opr domain.SysOpr
	err := GetDB(c).Where("username = ?", payload.Username).First(&opr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	} else if err != nil {
		return failFromError(c, err)
	}

	hashed := common.Sha256HashWithSalt(payload.Password, common.GetSecretSalt())
	if opr.Password != hashed || !strings.EqualFold(opr.Status, common.ENABLED) {
		zap.L().Warn("adminapi: login rejected",
			zap.String("username", payload.Username),
			zap.String("remote", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}

	claims := jwt.MapClaims{
		"uid":   opr.ID,
		"usr":   opr.Username,
		"level": opr.Level,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(webserver.Secret()))
	if err != nil {
		return failFromError(c, err)
	}

	GetDB(c).Model(&domain.SysOpr{}).Where("id = ?", opr.ID).
		Update("last_login", time.Now())
	GetDB(c).Create(&domain.SysOprLog{
		ID:        common.UUIDint64(),
		OprName:   opr.Username,
		OprIp:     c.RealIP(),
		OptAction: "login",
		OptDesc:   "operator login",
		OptTime:   time.Now(),
	})

	return ok(c, map[string]interface{}{
		"token":    token,
		"username": opr.Username,
		"level":    opr.Level,
	})
}

// currentUsername pulls the operator name out of the request JWT, when one
// was presented.
func currentUsername(c echo.Context) string {
	token, okc := c.Get("user").(*jwt.Token)
	if !okc {
		return "anonymous"
	}
	claims, okc := token.Claims.(jwt.MapClaims)
	if !okc {
		return "anonymous"
	}
	if usr, okc := claims["usr"].(string); okc {
		return usr
	}
	return "anonymous"
}
