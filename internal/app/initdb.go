package app

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/pkg/common"
)

const DefaultPartnerId int64 = 999999999

// settingSchema describes one seedable settings entry.
type settingSchema struct {
	Key         string
	Default     string
	Description string
}

// settingSchemas are the tunables seeded into sys_config on first start.
// Values are editable at runtime through the settings table.
var settingSchemas = []settingSchema{
	{"provider.recreate_delay_ms", "1500", "Delay after deleting a provider instance before recreating it"},
	{"provider.pairing_delay_ms", "2000", "Delay after recreating a provider instance before requesting pairing"},
	{"provider.reconcile_interval_min", "5", "Minutes between background session status sweeps"},
	{"webhook.dedupe_ttl_hours", "24", "Hours a provider message id is remembered for duplicate suppression"},
	{"system.oprlog_keep_days", "365", "Days operator audit logs are retained"},
}

func (a *Application) checkSuper() {
	const superUsername = "admin"
	const defaultPassword = "chatgate"

	hashedPassword := common.Sha256HashWithSalt(defaultPassword, common.GetSecretSalt())

	var operator domain.SysOpr
	err := a.gormDB.Where("username = ?", superUsername).First(&operator).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := a.gormDB.Create(&domain.SysOpr{
			ID:        common.UUIDint64(),
			Realname:  "administrator",
			Mobile:    "0000",
			Email:     "N/A",
			Username:  superUsername,
			Password:  hashedPassword,
			Level:     "super",
			Status:    common.ENABLED,
			Remark:    "super",
			LastLogin: time.Now(),
		}).Error; err != nil {
			zap.L().Error("failed to create default super admin", zap.Error(err))
		} else {
			zap.L().Info("initialized default super admin account", zap.String("username", superUsername))
		}
		return
	case err != nil:
		zap.L().Error("failed to query super admin", zap.Error(err))
		return
	}

	resetPassword := strings.TrimSpace(operator.Password) == ""
	resetLevel := !strings.EqualFold(operator.Level, "super")
	resetStatus := !strings.EqualFold(operator.Status, common.ENABLED)

	if !resetPassword && !resetLevel && !resetStatus {
		return
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if resetPassword {
		updates["password"] = hashedPassword
	}
	if resetLevel {
		updates["level"] = "super"
	}
	if resetStatus {
		updates["status"] = common.ENABLED
	}

	if err := a.gormDB.Model(&domain.SysOpr{}).Where("id = ?", operator.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to repair super admin account", zap.Error(err))
		return
	}

	zap.L().Warn("repaired default super admin account",
		zap.String("username", superUsername),
		zap.Bool("passwordReset", resetPassword),
		zap.Bool("levelReset", resetLevel),
		zap.Bool("statusEnabled", resetStatus))
}

func (a *Application) checkSettings() {
	for sortid, schema := range settingSchemas {
		category, name, ok := splitSettingKey(schema.Key)
		if !ok {
			zap.L().Warn("invalid config key format", zap.String("key", schema.Key))
			continue
		}

		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				ID:     common.UUIDint64(),
				Sort:   sortid,
				Type:   category,
				Name:   name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Key),
				zap.String("default", schema.Default))
		}
	}
}

// checkDefaultPartner ensures a fallback tenant record exists for sessions
// created without an explicit partner.
func (a *Application) checkDefaultPartner() {
	var partner domain.SysPartner
	err := a.gormDB.Where("id = ?", DefaultPartnerId).First(&partner).Error
	if err != nil {
		a.gormDB.Create(&domain.SysPartner{
			ID:     DefaultPartnerId,
			Name:   "default",
			Remark: "Fallback tenant for unassigned sessions",
		})
	}
}

func splitSettingKey(key string) (category, name string, ok bool) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
