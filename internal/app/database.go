package app

import (
	"fmt"
	"path"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/chatgate/config"
)

// getDatabase opens the configured database. Postgres is the production
// target; sqlite serves development and single-node deployments.
func getDatabase(dbConfig config.DBConfig, workdir string) *gorm.DB {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var (
		gdb *gorm.DB
		err error
	)
	switch dbConfig.Type {
	case "sqlite":
		gdb, err = gorm.Open(sqlite.Open(path.Join(workdir, dbConfig.Name+".db")), gormConfig)
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=Asia/Jakarta",
			dbConfig.Host, dbConfig.User, dbConfig.Passwd, dbConfig.Name, dbConfig.Port)
		gdb, err = gorm.Open(postgres.Open(dsn), gormConfig)
	}
	if err != nil {
		zap.S().Panicf("database connect failed: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		zap.S().Panicf("database handle failed: %v", err)
	}
	if dbConfig.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	}
	if dbConfig.IdleConn > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.IdleConn)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return gdb
}
