package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Connect opens a gorm handle for the given driver. Postgres goes through the pgx stdlib
// driver so the same *sql.DB pool can carry pgvector values.
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", DriverPostgres:
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open pgx: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverSQLite:
		dialector = gormsqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER=%q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if strings.ToLower(driver) == DriverSQLite {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	}

	return gdb, nil
}

// DialectName is the human name used in prompts that ask a model for SQL.
func DialectName(driver string) string {
	switch strings.ToLower(driver) {
	case DriverMySQL:
		return "MySQL"
	case DriverSQLite:
		return "SQLite"
	default:
		return "PostgreSQL"
	}
}
