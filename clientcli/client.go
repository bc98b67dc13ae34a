// Package clientcli implements the client SDK used by coffre-cli to talk
// to a coffre server: upload, download, info, and delete against the REST
// API, with profile-based configuration.
package clientcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/toccatech/coffre"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// Config holds connection settings for one server.
type Config struct {
	Endpoint string
	Token    string
}

// Client performs operations against a coffre server.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a new Client with the given config and options.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	c := &Client{
		config:     &Config{Endpoint: endpoint, Token: cfg.Token},
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// UploadOptions describes one upload.
type UploadOptions struct {
	LocalPath  string
	Resource   string
	Visibility string
	SharedWith []string
	Category   string
	// ContentType overrides the type guessed from the file extension.
	ContentType string
}

// UploadResult reports one completed upload.
type UploadResult struct {
	LocalPath string
	FileID    string
	File      coffre.FileRecord
}

// Upload sends one file to the server.
func (c *Client) Upload(ctx context.Context, opts UploadOptions) (UploadResult, error) {
	if opts.LocalPath == "" {
		return UploadResult{}, fmt.Errorf("upload: %w", ErrEmptyPath)
	}

	f, err := os.Open(opts.LocalPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open local file: %w", err)
	}
	defer func() { _ = f.Close() }()

	contentType := opts.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(opts.LocalPath))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sharedWith := opts.SharedWith
	if sharedWith == nil {
		sharedWith = []string{}
	}
	sharedJSON, err := json.Marshal(sharedWith)
	if err != nil {
		return UploadResult{}, fmt.Errorf("encode sharedWith: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"resource":   opts.Resource,
		"visibility": opts.Visibility,
		"sharedWith": string(sharedJSON),
	}
	if opts.Category != "" {
		fields["category"] = opts.Category
	}
	for name, val := range fields {
		if err := mw.WriteField(name, val); err != nil {
			return UploadResult{}, fmt.Errorf("write form field: %w", err)
		}
	}

	partHeader := make(map[string][]string)
	partHeader["Content-Disposition"] = []string{mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": filepath.Base(opts.LocalPath),
	})}
	partHeader["Content-Type"] = []string{contentType}

	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return UploadResult{}, fmt.Errorf("copy file contents: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("finalize form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files/upload", &body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		FileID string            `json:"fileId"`
		File   coffre.FileRecord `json:"file"`
	}
	if err := c.doJSON(req, http.StatusCreated, &out); err != nil {
		return UploadResult{}, err
	}

	return UploadResult{LocalPath: opts.LocalPath, FileID: out.FileID, File: out.File}, nil
}

// Download streams a file's bytes into w.
func (c *Client) Download(ctx context.Context, id string, attachment bool, w io.Writer) error {
	path := "/files/" + id
	if attachment {
		path += "?attachment=true"
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeServerError(resp)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download: copy body: %w", err)
	}
	return nil
}

// Info fetches a file's metadata.
func (c *Client) Info(ctx context.Context, id string) (coffre.FileRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+id+"/info", nil)
	if err != nil {
		return coffre.FileRecord{}, err
	}

	var out struct {
		File coffre.FileRecord `json:"file"`
	}
	if err := c.doJSON(req, http.StatusOK, &out); err != nil {
		return coffre.FileRecord{}, err
	}
	return out.File, nil
}

// Delete removes a file.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/files/"+id, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return decodeServerError(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.Endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		return decodeServerError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeServerError(resp *http.Response) error {
	serverErr := &ServerError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(serverErr); err != nil {
		serverErr.Code = "unexpected_response"
		serverErr.Message = fmt.Sprintf("server returned status %d", resp.StatusCode)
	}
	return serverErr
}
