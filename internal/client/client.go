// Package client provides an HTTP client for the anonymization backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/redactomat/internal/apierr"
	"github.com/raphaelgruber/redactomat/internal/metrics"
	"github.com/raphaelgruber/redactomat/internal/validator"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 2 * time.Minute

// DefaultDocumentName is used when the backend does not name the result.
const DefaultDocumentName = "anonymized.pdf"

// DefaultMaxDocumentBytes caps a downloaded result.
const DefaultMaxDocumentBytes = 64 << 20

// Backend task states reported by the status endpoint.
const (
	StatusProcessing = "Processing"
	StatusCompleted  = "Completed"
	StatusFailed     = "Failed"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	// MaxDocumentBytes rejects larger status bodies. Zero means
	// DefaultMaxDocumentBytes.
	MaxDocumentBytes int64

	// HTTPClient overrides the underlying client; its transport is wrapped
	// for request logging.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Collector
}

// Client talks to the upload and status endpoints.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	maxDoc     int64
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https: %s", cfg.BaseURL)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	maxDoc := cfg.MaxDocumentBytes
	if maxDoc <= 0 {
		maxDoc = DefaultMaxDocumentBytes
	}

	hc := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	hc.Transport = newLoggingTransport(hc.Transport, logger)

	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: hc,
		maxDoc:     maxDoc,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message,omitempty"`
}

// ProcessingStatus is the JSON body of the status endpoint.
type ProcessingStatus struct {
	Status      string `json:"status"`
	CurrentPage *int   `json:"current_page,omitempty"`
	TotalPages  *int   `json:"total_pages,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Document is the redacted PDF returned by the status endpoint.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// StatusResult holds exactly one of Document or Status.
type StatusResult struct {
	Document *Document
	Status   *ProcessingStatus
}

// Upload submits the file with the category flags and returns the task id.
// Errors are *apierr.Error of kind UploadFailed, or the context error.
func (c *Client) Upload(ctx context.Context, file *validator.SelectedFile, flags map[string]bool) (taskID string, err error) {
	start := time.Now()
	defer func() { c.metrics.Record(metrics.OpUpload, time.Since(start), int64(len(file.Data)), err) }()

	body, contentType, err := encodeUpload(file, flags)
	if err != nil {
		return "", apierr.Network(apierr.UploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload"), body)
	if err != nil {
		return "", apierr.Network(apierr.UploadFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apierr.Network(apierr.UploadFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apierr.Network(apierr.UploadFailed, fmt.Errorf("read response: %w", err))
	}

	if !success(resp.StatusCode) {
		return "", apierr.Parse(apierr.UploadFailed, resp.StatusCode, data)
	}

	var out UploadResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", apierr.Network(apierr.UploadFailed, fmt.Errorf("unmarshal response: %w", err))
	}
	if out.TaskID == "" {
		return "", apierr.Network(apierr.UploadFailed, fmt.Errorf("response has no task_id"))
	}

	c.logger.Debug("upload accepted", "task_id", out.TaskID, "file", file.Name, "bytes", len(file.Data))
	return out.TaskID, nil
}

// Status fetches the state of a task. A PDF response is returned as the
// document; anything else is decoded as a JSON status. Errors are
// *apierr.Error of kind StatusCheckFailed, or the context error.
func (c *Client) Status(ctx context.Context, taskID string) (result *StatusResult, err error) {
	start := time.Now()
	var n int64
	defer func() { c.metrics.Record(metrics.OpStatus, time.Since(start), n, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("status", taskID), nil)
	if err != nil {
		return nil, apierr.Network(apierr.StatusCheckFailed, err)
	}
	req.Header.Set("Accept", "application/json, application/pdf")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apierr.Network(apierr.StatusCheckFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDoc+1))
	n = int64(len(data))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apierr.Network(apierr.StatusCheckFailed, fmt.Errorf("read response: %w", err))
	}
	if n > c.maxDoc {
		return nil, apierr.New(apierr.StatusCheckFailed,
			fmt.Sprintf("The result exceeds the download limit of %d bytes", c.maxDoc)).
			WithDetails(apierr.Details{
				TechnicalError: fmt.Sprintf("status body larger than %d bytes", c.maxDoc),
				Extra:          map[string]any{"max_bytes": c.maxDoc},
			})
	}

	if !success(resp.StatusCode) {
		return nil, apierr.Parse(apierr.StatusCheckFailed, resp.StatusCode, data)
	}

	if isPDF(resp.Header.Get("Content-Type")) {
		return &StatusResult{Document: &Document{
			Name:        documentName(resp.Header.Get("Content-Disposition")),
			ContentType: validator.PDFMediaType,
			Data:        data,
		}}, nil
	}

	var status ProcessingStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, apierr.Network(apierr.StatusCheckFailed, fmt.Errorf("unmarshal status: %w", err))
	}
	return &StatusResult{Status: &status}, nil
}

// UnknownStatus is the error for a status value other than the backend
// task states.
func UnknownStatus(status string) *apierr.Error {
	return apierr.New(apierr.StatusCheckFailed, fmt.Sprintf("Unknown task status %q", status))
}

// EmptyStatus is the error for a status result with neither a document nor
// a status body.
func EmptyStatus() *apierr.Error {
	return apierr.New(apierr.StatusCheckFailed, "Empty status response")
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL.String() + "/" + strings.Join(escaped, "/")
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func encodeUpload(file *validator.SelectedFile, flags map[string]bool) (io.Reader, string, error) {
	prefs, err := json.Marshal(flags)
	if err != nil {
		return nil, "", fmt.Errorf("marshal preferences: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": file.Name,
	}))
	h.Set("Content-Type", file.MediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if err := w.WriteField("preferences", string(prefs)); err != nil {
		return nil, "", fmt.Errorf("write preferences: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func success(code int) bool {
	return code >= 200 && code < 300
}

func isPDF(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), validator.PDFMediaType)
}

func documentName(disposition string) string {
	if disposition == "" {
		return DefaultDocumentName
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return DefaultDocumentName
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == ".." {
		return DefaultDocumentName
	}
	return name
}
