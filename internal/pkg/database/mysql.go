// internal/pkg/database/mysql.go
package database

import (
	"fmt"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"demandcast/internal/pkg/bootstrap"
	"demandcast/internal/pkg/logger"
)

// DSN 使用驱动自带的 Config 生成连接串，避免手工拼接时的转义问题
func DSN(cfg bootstrap.MySQLConfig) string {
	dc := driver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

// Open 打开 gorm 连接并设置连接池
func Open(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.L().Info().Msgf("✅ MySQL connected (%s:%d/%s)", cfg.Host, cfg.Port, cfg.Database)
	return db, nil
}
