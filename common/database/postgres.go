package database

import (
	"database/sql"
	"fmt"
	"time"

	"gymsync/common/config"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NewPostgresDB opens a PostgreSQL connection pool and pings it.
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewListener opens a dedicated LISTEN connection. Connection state changes
// are logged; a reconnect delivers a nil notification to the channel.
func NewListener(cfg *config.DatabaseConfig, logger *zap.Logger) *pq.Listener {
	return pq.NewListener(cfg.GetDSN(), time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Debug("Postgres listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn("Postgres listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("Postgres listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("Postgres listener connection attempt failed", zap.Error(err))
		}
	})
}

// Close closes db if it is not nil.
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
