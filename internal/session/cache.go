/**
 * Copyright 2025-present Finlink Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	querySaveSession = `
		INSERT INTO sessions (id, access_token, refresh_token, token_type, expires_at, user_id, email, phone, metadata, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			user_id = excluded.user_id,
			email = excluded.email,
			phone = excluded.phone,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP`

	queryLoadSession = `
		SELECT access_token, refresh_token, token_type, expires_at, user_id, email, phone, metadata
		FROM sessions
		WHERE id = 1`

	queryClearSession = `DELETE FROM sessions WHERE id = 1`
)

// Cache persists the active session across client restarts. It is the
// only durable local state this application keeps; every other record
// lives in the hosted store.
type Cache struct {
	db *sql.DB
}

func NewCache(ctx context.Context, cfg models.CacheConfig) (*Cache, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening session cache", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("unable to open session cache: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping session cache: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize session cache schema: %w", err)
	}

	return cache, nil
}

func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		token_type TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		metadata TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Save upserts the single cached session row.
func (c *Cache) Save(ctx context.Context, sess *models.Session) error {
	metadata, err := json.Marshal(sess.User.Metadata)
	if err != nil {
		return fmt.Errorf("unable to encode session metadata: %w", err)
	}

	_, err = c.db.ExecContext(ctx, querySaveSession,
		sess.AccessToken, sess.RefreshToken, sess.TokenType,
		sess.ExpiresAt.UTC().Format(time.RFC3339),
		sess.User.Id, sess.User.Email, sess.User.Phone, string(metadata))
	if err != nil {
		return fmt.Errorf("unable to save session: %w", err)
	}
	return nil
}

// Load returns the cached session or store.ErrNoCachedSession.
func (c *Cache) Load(ctx context.Context) (*models.Session, error) {
	var (
		sess      models.Session
		expiresAt string
		phone     sql.NullString
		metadata  sql.NullString
	)

	err := c.db.QueryRowContext(ctx, queryLoadSession).Scan(
		&sess.AccessToken, &sess.RefreshToken, &sess.TokenType, &expiresAt,
		&sess.User.Id, &sess.User.Email, &phone, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoCachedSession
		}
		return nil, fmt.Errorf("unable to load session: %w", err)
	}

	sess.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("cached session has invalid expiry: %w", err)
	}
	sess.User.Phone = phone.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &sess.User.Metadata); err != nil {
			zap.L().Warn("Dropping malformed cached session metadata", zap.Error(err))
		}
	}

	return &sess, nil
}

// Clear removes the cached session.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, queryClearSession); err != nil {
		return fmt.Errorf("unable to clear session: %w", err)
	}
	return nil
}

func (c *Cache) Close() {
	if err := c.db.Close(); err != nil {
		zap.L().Warn("Failed to close session cache", zap.Error(err))
	}
}
