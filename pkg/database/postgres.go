package database

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sellerdesk/peony/config"
)

// Connect opens the catalog database, retrying with a short backoff while the
// database container is still coming up.
func Connect(cfg *config.Config, logger ectologger.Logger) (DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUserName,
		cfg.DatabasePassword,
		cfg.DatabaseName,
		cfg.DatabaseSSLMode,
	)

	var db *sqlx.DB
	var err error
	attempts := cfg.DatabaseReconnectRetryCount
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		db, err = sqlx.Connect(cfg.DatabaseDriver, dsn)
		if err == nil {
			break
		}
		logger.WithError(err).Warnf("Database connection attempt %d/%d failed", attempt, attempts)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.DatabaseName, err)
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	return NewDatabaseInstance(db, logger), nil
}
