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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"finlink-client-go/internal/models"
)

func Load() (*models.Config, error) {
	requestTimeout, err := getEnvDuration("FINLINK_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	heartbeat, err := getEnvDuration("REALTIME_HEARTBEAT_INTERVAL", 25*time.Second)
	if err != nil {
		return nil, err
	}

	refreshMargin, err := getEnvDuration("SESSION_REFRESH_MARGIN", time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("CACHE_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("CACHE_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("CACHE_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	projectURL := getEnvString("FINLINK_URL", "")
	if projectURL == "" {
		return nil, fmt.Errorf("FINLINK_URL must be set")
	}
	anonKey := getEnvString("FINLINK_ANON_KEY", "")
	if anonKey == "" {
		return nil, fmt.Errorf("FINLINK_ANON_KEY must be set")
	}

	return &models.Config{
		Backend: models.BackendConfig{
			ProjectURL:     projectURL,
			AnonKey:        anonKey,
			RequestTimeout: requestTimeout,
			AllowedHosts:   getEnvList("FINLINK_ALLOWED_HOSTS"),
		},
		Cache: models.CacheConfig{
			Path:            getEnvString("SESSION_CACHE_PATH", "session.db"),
			MaxOpenConns:    getEnvInt("CACHE_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    getEnvInt("CACHE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Realtime: models.RealtimeConfig{
			HeartbeatInterval: heartbeat,
			RefreshMargin:     refreshMargin,
			StreamsFile:       getEnvString("STREAMS_FILE", ""),
		},
		Admin: models.AdminConfig{
			Emails: getEnvList("ADMIN_EMAILS"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
