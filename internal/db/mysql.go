package db

import (
	"database/sql"
	"errors"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"

	"github.com/go-sql-driver/mysql"
)

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// IsDuplicateKey reports whether err is a MySQL unique-constraint violation.
// The unique index on external_transaction_id is the authoritative
// idempotency guard; a 1062 on insert means the notification already exists.
func IsDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
