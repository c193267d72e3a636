// Package api talks to the replay site that hosts finished rounds.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dumfing/skirmish/internal/storage"
	"github.com/dumfing/skirmish/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/rounds/add"
)

// ErrNothingToUpload is returned by UploadFrom when the backend has not
// exported a file yet.
var ErrNothingToUpload = errors.New("no exported round to upload")

// StatusError is returned for any non-200 reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("replay site returned status %d", e.Code)
	}
	return fmt.Sprintf("replay site returned status %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxTries   uint
}

// Option tunes a Client.
type Option func(*Client)

// WithMaxTries bounds upload attempts. Client errors (4xx) are never
// retried.
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = max(n, 1) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxTries:   3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("healthcheck request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// UploadFrom uploads the last round exported by u.
func (c *Client) UploadFrom(ctx context.Context, u storage.Uploadable) error {
	path := u.GetExportedFilePath()
	if path == "" {
		return ErrNothingToUpload
	}
	return c.Upload(ctx, path, u.GetExportMetadata())
}

// Upload posts a round export as a multipart form, retrying with
// exponential backoff on transport errors and 5xx replies.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.uploadOnce(ctx, filePath, meta)
		var se *StatusError
		if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	return err
}

func (c *Client) uploadOnce(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeForm(form, file, filepath.Base(filePath), meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) writeForm(form *multipart.Writer, file io.Reader, name string, meta core.UploadMetadata) error {
	fields := []struct{ key, value string }{
		{"secret", c.apiKey},
		{"filename", name},
		{"levelName", meta.LevelName},
		{"serverName", meta.ServerName},
		{"roundDuration", strconv.FormatFloat(meta.RoundDuration, 'f', 3, 64)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := form.WriteField(f.key, f.value); err != nil {
			return fmt.Errorf("writing field %s: %w", f.key, err)
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copying %s: %w", name, err)
	}
	return form.Close()
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}
