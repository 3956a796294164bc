// Package client is the REST client for the NecroNet artifact service.
//
// Every method returns either a result or a *necronet.APIError; raw
// transport errors never escape. Callers distinguish failures with
// errors.Is against necronet.ErrNetwork, ErrTimeout, ErrNotFound and
// ErrServer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/necronet/pkg/necronet"
)

// DefaultPageSize is used by ListArtifacts when no positive limit is given.
const DefaultPageSize = 20

// maxErrorBody caps how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

// Client talks to the artifact service over HTTP.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	uploadTimeout  time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
	requestID      func() string
}

// New creates a client. Without options it targets DefaultBaseURL with the
// default timeouts.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		httpClient:     &http.Client{},
		uploadTimeout:  DefaultUploadTimeout,
		requestTimeout: DefaultRequestTimeout,
		logger:         slog.Default(),
		requestID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadArtifact sends file as multipart field "file" and returns the
// created artifact. onProgress, if set, receives whole percentages of the
// request body handed to the transport; it is only called when the file
// size is known.
func (c *Client) UploadArtifact(ctx context.Context, file *necronet.File, onProgress ProgressFunc) (*necronet.Artifact, error) {
	if file == nil || file.Reader == nil {
		return nil, necronet.NewValidationError("no file to upload")
	}

	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	body, contentType, length, err := multipartBody(file)
	if err != nil {
		return nil, necronet.NewNetworkError(fmt.Errorf("encode upload body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/artifacts/upload", newProgressReader(body, length, onProgress))
	if err != nil {
		return nil, necronet.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = length

	var artifact necronet.Artifact
	if err := c.do(req, false, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// GetArtifact fetches a single artifact by id. A missing artifact yields an
// error matching necronet.ErrNotFound with Status 404.
func (c *Client) GetArtifact(ctx context.Context, id string) (*necronet.Artifact, error) {
	var artifact necronet.Artifact
	if err := c.getJSON(ctx, "/api/artifacts/"+url.PathEscape(id), nil, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListArtifacts fetches one page of artifacts.
func (c *Client) ListArtifacts(ctx context.Context, limit, offset int) (*necronet.ArtifactList, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var list necronet.ArtifactList
	if err := c.getJSON(ctx, "/api/artifacts", query, &list); err != nil {
		return nil, err
	}
	if list.Artifacts == nil {
		list.Artifacts = []necronet.Artifact{}
	}
	return &list, nil
}

// GetMigrationPlan asks the service how it would migrate an artifact.
func (c *Client) GetMigrationPlan(ctx context.Context, name string, artifactType necronet.ArtifactType) (*necronet.MigrationPlan, error) {
	payload, err := json.Marshal(necronet.MigrationPlanRequest{Name: name, ArtifactType: artifactType})
	if err != nil {
		return nil, necronet.NewNetworkError(fmt.Errorf("encode migration request: %w", err))
	}

	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/artifacts/migrate", bytes.NewReader(payload))
	if err != nil {
		return nil, necronet.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	var plan necronet.MigrationPlan
	if err := c.do(req, true, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Health reports service liveness.
func (c *Client) Health(ctx context.Context) (*necronet.Health, error) {
	var health necronet.Health
	if err := c.getJSON(ctx, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout > 0 {
		return context.WithTimeout(ctx, c.requestTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return necronet.NewNetworkError(err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, true, out)
}

// do executes req and decodes a 2xx JSON body into out. mapNotFound selects
// the NotFound kind for 404 answers; uploads report them as server errors.
func (c *Client) do(req *http.Request, mapNotFound bool, out any) error {
	if c.requestID != nil {
		req.Header.Set("X-Request-ID", c.requestID())
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := transportError(err)
		c.logger.Debug("necronet request failed",
			"method", req.Method, "path", req.URL.Path, "kind", apiErr.Kind, "err", err, "duration", time.Since(start))
		return apiErr
	}
	defer resp.Body.Close()

	c.logger.Debug("necronet request",
		"method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(req, resp, mapNotFound)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if necronet.IsTimeout(err) {
			return necronet.NewTimeoutError(err)
		}
		return necronet.NewServerError(resp.StatusCode, "", fmt.Errorf("decode %s response: %w", req.URL.Path, err))
	}
	return nil
}

func (c *Client) statusError(req *http.Request, resp *http.Response, mapNotFound bool) error {
	detail := readErrorDetail(resp.Body)
	cause := fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, resp.Status)

	if mapNotFound && resp.StatusCode == http.StatusNotFound {
		if detail != "" {
			c.logger.Debug("necronet not found", "path", req.URL.Path, "detail", detail)
		}
		return necronet.NewNotFoundError(cause)
	}
	return necronet.NewServerError(resp.StatusCode, detail, cause)
}

// transportError classifies a failure where no response was received.
func transportError(err error) *necronet.APIError {
	if necronet.IsTimeout(err) {
		return necronet.NewTimeoutError(err)
	}
	return necronet.NewNetworkError(err)
}

// readErrorDetail extracts the string "detail" field of an error body, or
// "" when the body is absent, not JSON, or carries a structured detail.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if s, ok := body.Detail.(string); ok {
		return s
	}
	return ""
}

// multipartBody streams file as a single-part form. The length is exact
// when file.Size is known, and -1 otherwise.
func multipartBody(file *necronet.File) (io.Reader, string, int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, err := mw.CreateFormFile("file", filepath.Base(file.Name)); err != nil {
		return nil, "", 0, err
	}
	head := append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, "", 0, err
	}
	tail := append([]byte(nil), buf.Bytes()...)

	content := file.Reader
	length := int64(-1)
	if file.Size > 0 {
		content = io.LimitReader(file.Reader, file.Size)
		length = int64(len(head)) + file.Size + int64(len(tail))
	}

	body := io.MultiReader(bytes.NewReader(head), content, bytes.NewReader(tail))
	return body, mw.FormDataContentType(), length, nil
}
