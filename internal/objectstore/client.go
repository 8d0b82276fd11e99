// Package objectstore uploads user avatars to the hosted object
// storage. Size and MIME constraints are the only client-enforced
// checks; authorization belongs to the store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finlink-client-go/internal/models"

	"go.uber.org/zap"
)

// MaxAvatarBytes caps avatar uploads at 2MB.
const MaxAvatarBytes = 2 << 20

const avatarBucket = "avatars"

var (
	ErrTooLarge    = errors.New("avatar exceeds 2MB limit")
	ErrNotAnImage  = errors.New("avatar must be an image")
	ErrEmptyUpload = errors.New("avatar content is empty")
)

// TokenSource supplies the current access token, or "".
type TokenSource interface {
	AccessToken() string
}

type Client struct {
	client  *http.Client
	baseURL string
	anonKey string
	tokens  TokenSource
}

func NewClient(cfg models.BackendConfig, tokens TokenSource) (*Client, error) {
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
		client:  &http.Client{Timeout: timeout * 2},
		baseURL: strings.TrimRight(cfg.ProjectURL, "/") + "/storage/v1",
		anonKey: cfg.AnonKey,
		tokens:  tokens,
	}, nil
}

// UploadAvatar validates the content client-side (size cap, sniffed
// image MIME type) and uploads it, returning the public URL.
func (c *Client) UploadAvatar(ctx context.Context, userId, filename string, content []byte) (string, error) {
	if userId == "" || filename == "" {
		return "", fmt.Errorf("user id and filename cannot be empty")
	}
	if len(content) == 0 {
		return "", ErrEmptyUpload
	}
	if len(content) > MaxAvatarBytes {
		return "", ErrTooLarge
	}

	// Sniff the content type; the file extension is not trusted.
	contentType := http.DetectContentType(content)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotAnImage
	}

	objectPath := avatarBucket + "/" + url.PathEscape(userId) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/object/"+objectPath, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("unable to build upload request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("avatar upload failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close upload response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", fmt.Errorf("object store returned %d: %s", resp.StatusCode, string(body))
	}

	publicURL := c.PublicURL(userId, filename)
	zap.L().Info("Avatar uploaded",
		zap.String("user_id", userId),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(content)),
		zap.String("url", publicURL))
	return publicURL, nil
}

// PublicURL returns the public fetch URL for a user's avatar.
func (c *Client) PublicURL(userId, filename string) string {
	return c.baseURL + "/object/public/" + avatarBucket + "/" +
		url.PathEscape(userId) + "/" + url.PathEscape(filename)
}

func (c *Client) bearer() string {
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			return token
		}
	}
	return c.anonKey
}
