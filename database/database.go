package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"

	"pixeltruth/config"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user is inactive")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAnalysisNotFound   = errors.New("analysis not found")
)

// connectTimeout bounds how long startup waits for MySQL.
const connectTimeout = 5 * time.Minute

// DSN builds the MySQL data source name for cfg.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// Connect opens the database and waits for it with exponential backoff.
func Connect(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = connectTimeout
	err = backoff.RetryNotify(db.Ping, policy, func(err error, wait time.Duration) {
		log.WithError(err).Warnf("Database connection failed, retrying in %v", wait)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("Connected to database %s at %s:%s", cfg.DBName, cfg.DBHost, cfg.DBPort)
	return db, nil
}
