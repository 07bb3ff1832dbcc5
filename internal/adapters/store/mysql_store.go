package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS triage_snapshots (
		message_id VARCHAR(255) PRIMARY KEY,
		payload MEDIUMTEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		INDEX idx_snapshots_expires_at (expires_at)
	)`,
	`CREATE TABLE IF NOT EXISTS learning_state (
		id INT PRIMARY KEY,
		schema_version INT NOT NULL,
		payload LONGTEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS priority_threads (
		thread_id VARCHAR(255) PRIMARY KEY,
		marked_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS spam_verdicts (
		sender_email VARCHAR(255) PRIMARY KEY,
		payload TEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		INDEX idx_verdicts_expires_at (expires_at)
	)`,
}

// MySQLStore is a MySQL implementation of the triage repositories
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to MySQL and creates the tables if needed
func NewMySQLStore(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	base, err := newSQLStore(db, "mysql", mysqlSchema, logger, cleanupFreq)
	if err != nil {
		return nil, err
	}
	return &MySQLStore{sqlStore: base}, nil
}
