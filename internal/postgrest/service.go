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

package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Compile-time check: *Service must satisfy store.RowStore.
var _ store.RowStore = (*Service)(nil)

// TokenSource supplies the current access token, or "" when no session
// is active (the anon key is sent as bearer in that case).
type TokenSource interface {
	AccessToken() string
}

// Service is the hosted row API reached over a PostgREST-style dialect.
// It is the system of record: this client performs no durable local
// writes beyond the session cache.
type Service struct {
	client  *http.Client
	prefix  string
	anonKey string
	tokens  TokenSource
	allowed map[string]struct{}
}

func NewService(cfg models.BackendConfig, tokens TokenSource) (*Service, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL cannot be empty")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("anon key cannot be empty")
	}

	client, err := createHTTPClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}

	allowed := make(map[string]struct{})
	if len(cfg.AllowedHosts) == 0 {
		if u, err := url.Parse(cfg.ProjectURL); err == nil && u.Hostname() != "" {
			allowed[u.Hostname()] = struct{}{}
		}
	} else {
		for _, h := range cfg.AllowedHosts {
			if h != "" {
				allowed[h] = struct{}{}
			}
		}
	}

	zap.L().Info("Row store client initialized", zap.String("url", cfg.ProjectURL))

	return &Service{
		client:  client,
		prefix:  strings.TrimRight(cfg.ProjectURL, "/") + "/rest/v1",
		anonKey: cfg.AnonKey,
		tokens:  tokens,
		allowed: allowed,
	}, nil
}

func createHTTPClient(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout * 2,
	}, nil
}

func (s *Service) Close() {
	s.client.CloseIdleConnections()
}

// bearer returns the session token when one exists, else the anon key.
func (s *Service) bearer() string {
	if s.tokens != nil {
		if token := s.tokens.AccessToken(); token != "" {
			return token
		}
	}
	return s.anonKey
}

func (s *Service) ensureAllowed(rawURL string) error {
	if len(s.allowed) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("invalid url host")
	}
	if _, ok := s.allowed[host]; !ok {
		return fmt.Errorf("host not allowed for row store: %s", host)
	}
	return nil
}

// do performs one request against a named collection. All mutating verbs
// ask for the affected representation back so callers can decode it.
func (s *Service) do(ctx context.Context, method, table string, query url.Values, body any) ([]byte, error) {
	if table == "" {
		return nil, fmt.Errorf("table cannot be empty")
	}

	reqURL := s.prefix + "/" + url.PathEscape(table)
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	if err := s.ensureAllowed(reqURL); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("unable to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+s.bearer())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", table, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response from %s: %w", table, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNotAcceptable:
		return nil, store.ErrRowNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, store.ErrDuplicateRow
	default:
		return nil, fmt.Errorf("row store returned %d for %s %s: %s",
			resp.StatusCode, method, table, truncate(string(data), 200))
	}
}

func (s *Service) get(ctx context.Context, table string, query url.Values) ([]byte, error) {
	return s.do(ctx, http.MethodGet, table, query, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
