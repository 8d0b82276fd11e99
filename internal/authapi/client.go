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

// Package authapi is the client for the hosted identity/session API.
// It is consumed, never re-implemented: sign-in, sign-out, token refresh
// and user retrieval are all delegated to the platform.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finlink-client-go/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned when the identity API rejects the
// supplied credentials or token.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PasswordCredentials is the email/password sign-in form. Validation
// runs before any network call.
type PasswordCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// PhoneNumber is the phone-OTP request form.
type PhoneNumber struct {
	Phone string `json:"phone" validate:"required,e164"`
}

// OTPVerification is the phone-OTP confirmation form.
type OTPVerification struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"token" validate:"required,len=6,numeric"`
}

type Client struct {
	client   *http.Client
	prefix   string
	anonKey  string
	validate *validator.Validate
}

func NewClient(cfg models.BackendConfig) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL cannot be empty")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("anon key cannot be empty")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:   &http.Client{Timeout: timeout},
		prefix:   strings.TrimRight(cfg.ProjectURL, "/") + "/auth/v1",
		anonKey:  cfg.AnonKey,
		validate: validator.New(),
	}, nil
}

// SignInWithPassword exchanges email/password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, creds PasswordCredentials) (*models.Session, error) {
	if err := c.validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("invalid sign-in form: %w", err)
	}

	data, err := c.post(ctx, "/token?grant_type=password", "", creds)
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

// SendPhoneOTP asks the identity API to text a one-time code.
func (c *Client) SendPhoneOTP(ctx context.Context, form PhoneNumber) error {
	if err := c.validate.Struct(form); err != nil {
		return fmt.Errorf("invalid phone form: %w", err)
	}

	_, err := c.post(ctx, "/otp", "", form)
	return err
}

// VerifyPhoneOTP exchanges a texted code for a session.
func (c *Client) VerifyPhoneOTP(ctx context.Context, form OTPVerification) (*models.Session, error) {
	if err := c.validate.Struct(form); err != nil {
		return nil, fmt.Errorf("invalid verification form: %w", err)
	}

	body := map[string]string{"phone": form.Phone, "token": form.Code, "type": "sms"}
	data, err := c.post(ctx, "/verify", "", body)
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

// OAuthURL builds the provider authorize URL the user must visit.
func (c *Client) OAuthURL(provider, redirectTo string) (string, error) {
	if provider == "" {
		return "", fmt.Errorf("provider cannot be empty")
	}
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.prefix + "/authorize?" + q.Encode(), nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token cannot be empty")
	}

	body := map[string]string{"refresh_token": refreshToken}
	data, err := c.post(ctx, "/token?grant_type=refresh_token", "", body)
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

// SignOut revokes the session server-side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.post(ctx, "/logout", accessToken, nil)
	return err
}

// GetUser fetches the identity behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.Identity, error) {
	data, err := c.request(ctx, http.MethodGet, "/user", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var identity models.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("unable to decode identity: %w", err)
	}
	if identity.Id == "" {
		return nil, fmt.Errorf("identity response missing id")
	}
	return &identity, nil
}

func (c *Client) post(ctx context.Context, path, accessToken string, body any) ([]byte, error) {
	return c.request(ctx, http.MethodPost, path, accessToken, body)
}

func (c *Client) request(ctx context.Context, method, path, accessToken string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("unable to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.prefix+path, reader)
	if err != nil {
		return nil, fmt.Errorf("unable to build auth request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close auth response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read auth response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("identity API returned %d for %s", resp.StatusCode, path)
	}
}

type sessionResponse struct {
	AccessToken  string          `json:"access_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	RefreshToken string          `json:"refresh_token"`
	User         models.Identity `json:"user"`
}

// decodeSession builds a Session from the token response. Expiry comes
// from the access token's exp claim (unverified parse; the server is the
// verifier), falling back to expires_in.
func decodeSession(data []byte) (*models.Session, error) {
	var resp sessionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unable to decode session: %w", err)
	}
	if resp.AccessToken == "" || resp.User.Id == "" {
		return nil, fmt.Errorf("session response missing token or user")
	}

	expiresAt := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if exp, err := tokenExpiry(resp.AccessToken); err == nil {
		expiresAt = exp
	}

	return &models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    expiresAt,
		User:         resp.User,
	}, nil
}

func tokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
