package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/lms/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

// ErrUnsupportedType is returned at startup for a database type that has a
// dialector but no schema.
var ErrUnsupportedType = errors.New("unsupported database type")

// RequirePostgres rejects any configured type other than postgres. The embedded
// migrations and the ON CONFLICT inserts only exist for postgres.
// TODO: accept TypeMySQL once it has its own migration set and INSERT IGNORE queries.
func RequirePostgres(cfg config.Config) error {
	kind := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if kind != TypePostgres {
		return fmt.Errorf("%w: %q, only %s is migrated", ErrUnsupportedType, cfg.DBType, TypePostgres)
	}
	return nil
}

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case TypeMySQL:
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case TypePostgres:
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case TypeSQLite:
		name := strings.TrimSpace(cfg.DBName)
		if name == "" {
			name = "lms"
		}
		return sqlite.Open(name + ".db"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}
