// Package backend is the HTTP client for the ASD screening backend: image
// upload, assessment evaluation and the read-only result, history, report and
// model metrics endpoints.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ad/go-telegram-screening/internal/models"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("assessment not found")
	ErrEmptyResponse = errors.New("backend returned an empty identifier")
)

// APIError is returned for any non-2xx answer of the backend.
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a client for the backend rooted at baseURL (for example
// http://localhost:8000). The /api prefix is appended by the client.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadImage sends one file as multipart field "file" and returns the
// filename assigned by the backend. The reader is streamed unmodified.
func (c *Client) UploadImage(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	size, err := io.Copy(part, r)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	var result struct {
		Filename string `json:"filename"`
	}
	if err := c.do(ctx, http.MethodPost, "/upload-image", writer.FormDataContentType(), body, &result); err != nil {
		return "", err
	}
	if result.Filename == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Info("image uploaded",
		zap.String("name", name),
		zap.Int64("bytes", size),
		zap.String("filename", result.Filename))
	return result.Filename, nil
}

// Assess posts the assessment request and returns the id of the stored result.
func (c *Client) Assess(ctx context.Context, req models.AssessmentRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/assess", "application/json", bytes.NewReader(data), &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Info("assessment created", zap.String("id", result.ID))
	return result.ID, nil
}

func (c *Client) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	var a models.Assessment
	if err := c.do(ctx, http.MethodGet, "/assessments/"+url.PathEscape(id), "", nil, &a); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListAssessments returns every stored assessment, newest first.
func (c *Client) ListAssessments(ctx context.Context) ([]models.Assessment, error) {
	var list []models.Assessment
	if err := c.do(ctx, http.MethodGet, "/assessments", "", nil, &list); err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.After(list[j].Timestamp)
	})
	return list, nil
}

// DownloadReport fetches the PDF report of an assessment.
func (c *Client) DownloadReport(ctx context.Context, id string) (string, []byte, error) {
	path := "/assessments/" + url.PathEscape(id) + "/report"
	resp, err := c.send(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return "", nil, notFound(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read report: %w", err)
	}

	filename := fmt.Sprintf("ASD_Assessment_Report_%s.pdf", id)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, data, nil
}

func (c *Client) ModelMetrics(ctx context.Context) (*models.ModelMetrics, error) {
	var m models.ModelMetrics
	if err := c.do(ctx, http.MethodGet, "/model-metrics", "", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Ping checks that the backend API root answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, "/", "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newAPIError(method, path, resp)
	}
	return resp, nil
}

func newAPIError(method, path string, resp *http.Response) *APIError {
	apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(payload.Detail)
		}
	}
	return apiErr
}

func notFound(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
