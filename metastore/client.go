// Package metastore implements the coffre.MetadataStore interface against
// the external GraphQL system of record that holds users, resources, and
// file records. The store is the single source of truth for existence;
// this client only moves data, it never caches decisions.
package metastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/toccatech/coffre"
)

// DefaultTimeout is the default HTTP client timeout for store calls.
const DefaultTimeout = 30 * time.Second

// Signer mints the service assertion attached to privileged mutations.
// Satisfied by auth.AssertionSigner.
type Signer interface {
	Sign() (string, error)
}

// Client talks to the metadata store's GraphQL endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	signer     Signer
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

// New creates a metadata store client for the given GraphQL endpoint.
// The signer is required: record creation is a privileged call and always
// carries a fresh service assertion.
func New(endpoint string, signer Signer, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("new metastore client: endpoint is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("new metastore client: signer is required")
	}

	c := &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		signer:     signer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// do executes one GraphQL call. Transport and protocol failures map to
// coffre.ErrUpstream; GraphQL-level errors are returned alongside the data
// so each operation can map them to its own domain error.
func (c *Client) do(ctx context.Context, req gqlRequest, authorization string) (json.RawMessage, []gqlError, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		httpReq.Header.Set("Authorization", "Bearer "+authorization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", coffre.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, nil, fmt.Errorf("%w: metadata store returned status %d", coffre.ErrUpstream, resp.StatusCode)
	}

	var envelope gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: decode response: %v", coffre.ErrUpstream, err)
	}

	return envelope.Data, envelope.Errors, nil
}

// upstreamErrs collapses GraphQL errors into ErrUpstream without leaking
// upstream messages into anything surfaced to a caller.
func upstreamErrs(op string, errs []gqlError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("%s: %w: %s", op, coffre.ErrUpstream, strings.Join(msgs, "; "))
}

// UserByToken resolves a session token to its user and profile.
func (c *Client) UserByToken(ctx context.Context, token string) (coffre.Identity, error) {
	data, gqlErrs, err := c.do(ctx, gqlRequest{
		Query:     queryUserByToken,
		Variables: map[string]any{"token": token},
	}, "")
	if err != nil {
		return coffre.Identity{}, fmt.Errorf("user by token: %w", err)
	}
	if len(gqlErrs) > 0 {
		return coffre.Identity{}, upstreamErrs("user by token", gqlErrs)
	}

	var out struct {
		QueryUser []wireUser `json:"queryUser"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return coffre.Identity{}, fmt.Errorf("user by token: %w: %v", coffre.ErrUpstream, err)
	}

	if len(out.QueryUser) == 0 {
		return coffre.Identity{}, fmt.Errorf("user by token: %w", coffre.ErrNotFound)
	}

	return out.QueryUser[0].identity(), nil
}

// ResourceByName looks up a resource by exact name. First match wins.
func (c *Client) ResourceByName(ctx context.Context, name string) (coffre.Resource, error) {
	data, gqlErrs, err := c.do(ctx, gqlRequest{
		Query:     queryResourceByName,
		Variables: map[string]any{"name": name},
	}, "")
	if err != nil {
		return coffre.Resource{}, fmt.Errorf("resource by name: %w", err)
	}
	if len(gqlErrs) > 0 {
		return coffre.Resource{}, upstreamErrs("resource by name", gqlErrs)
	}

	var out struct {
		QueryResource []coffre.Resource `json:"queryResource"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return coffre.Resource{}, fmt.Errorf("resource by name: %w: %v", coffre.ErrUpstream, err)
	}

	if len(out.QueryResource) == 0 {
		return coffre.Resource{}, fmt.Errorf("resource by name %q: %w", name, coffre.ErrNotFound)
	}

	return out.QueryResource[0], nil
}

// CreateFile creates a record, authorized by a freshly minted service
// assertion. GraphQL-level rejections are field-level validation failures
// (typically an unknown sharedWith id) and map to ErrValidation.
func (c *Client) CreateFile(ctx context.Context, rec coffre.NewFileRecord) (coffre.FileRecord, error) {
	assertion, err := c.signer.Sign()
	if err != nil {
		return coffre.FileRecord{}, fmt.Errorf("create file: %w", err)
	}

	shared := make([]map[string]string, 0, len(rec.SharedWith))
	for _, id := range rec.SharedWith {
		shared = append(shared, map[string]string{"id": id})
	}

	data, gqlErrs, err := c.do(ctx, gqlRequest{
		Query: mutationAddFile,
		Variables: map[string]any{
			"input": map[string]any{
				"originalName": rec.OriginalName,
				"name":         rec.StoredName,
				"size":         rec.Size,
				"mimeType":     rec.MIMEType,
				"visibility":   string(rec.Visibility),
				"owner":        map[string]string{"id": rec.Owner},
				"sharedWith":   shared,
				"resource":     map[string]string{"id": rec.ResourceID},
				"createdAt":    rec.CreatedAt.Format(time.RFC3339),
			},
		},
	}, assertion)
	if err != nil {
		return coffre.FileRecord{}, fmt.Errorf("create file: %w", err)
	}
	if len(gqlErrs) > 0 {
		return coffre.FileRecord{}, fmt.Errorf("create file: %w: at least one sharedWith id does not point to a known user profile", coffre.ErrValidation)
	}

	var out struct {
		AddFile struct {
			File []wireFile `json:"file"`
		} `json:"addFile"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return coffre.FileRecord{}, fmt.Errorf("create file: %w: %v", coffre.ErrUpstream, err)
	}

	if len(out.AddFile.File) == 0 {
		return coffre.FileRecord{}, fmt.Errorf("create file: %w: store returned no record", coffre.ErrUpstream)
	}

	return out.AddFile.File[0].record(), nil
}

// FileByID returns the record for the given id.
func (c *Client) FileByID(ctx context.Context, id string) (coffre.FileRecord, error) {
	data, gqlErrs, err := c.do(ctx, gqlRequest{
		Query:     queryFileByID,
		Variables: map[string]any{"id": id},
	}, "")
	if err != nil {
		return coffre.FileRecord{}, fmt.Errorf("file by id: %w", err)
	}
	if len(gqlErrs) > 0 {
		return coffre.FileRecord{}, upstreamErrs("file by id", gqlErrs)
	}

	var out struct {
		GetFile *wireFile `json:"getFile"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return coffre.FileRecord{}, fmt.Errorf("file by id: %w: %v", coffre.ErrUpstream, err)
	}

	if out.GetFile == nil {
		return coffre.FileRecord{}, fmt.Errorf("file %s: %w", id, coffre.ErrNotFound)
	}

	return out.GetFile.record(), nil
}

// FileByStoredName returns the record referencing the given blob name.
func (c *Client) FileByStoredName(ctx context.Context, storedName string) (coffre.FileRecord, error) {
	data, gqlErrs, err := c.do(ctx, gqlRequest{
		Query:     queryFileByStoredName,
		Variables: map[string]any{"name": storedName},
	}, "")
	if err != nil {
		return coffre.FileRecord{}, fmt.Errorf("file by stored name: %w", err)
	}
	if len(gqlErrs) > 0 {
		return coffre.FileRecord{}, upstreamErrs("file by stored name", gqlErrs)
	}

	var out struct {
		QueryFile []wireFile `json:"queryFile"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return coffre.FileRecord{}, fmt.Errorf("file by stored name: %w: %v", coffre.ErrUpstream, err)
	}

	if len(out.QueryFile) == 0 {
		return coffre.FileRecord{}, fmt.Errorf("file %q: %w", storedName, coffre.ErrNotFound)
	}

	return out.QueryFile[0].record(), nil
}

// UpdateFile applies a patch to a record's mutable fields.
func (c *Client) UpdateFile(ctx context.Context, id string, patch coffre.FilePatch) (coffre.FileRecord, error) {
	set := map[string]any{}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Visibility != nil {
		set["visibility"] = string(*patch.Visibility)
	}

	data, gqlErrs, err := c.do(ctx, gqlRequest{
		Query:     mutationUpdateFile,
		Variables: map[string]any{"id": id, "set": set},
	}, "")
	if err != nil {
		return coffre.FileRecord{}, fmt.Errorf("update file: %w", err)
	}
	if len(gqlErrs) > 0 {
		return coffre.FileRecord{}, upstreamErrs("update file", gqlErrs)
	}

	var out struct {
		UpdateFile struct {
			File []wireFile `json:"file"`
		} `json:"updateFile"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return coffre.FileRecord{}, fmt.Errorf("update file: %w: %v", coffre.ErrUpstream, err)
	}

	if len(out.UpdateFile.File) == 0 {
		return coffre.FileRecord{}, fmt.Errorf("file %s: %w", id, coffre.ErrNotFound)
	}

	return out.UpdateFile.File[0].record(), nil
}

// DeleteFile removes the record and returns the stored blob name it
// pointed at, so the caller can remove the blob as well.
func (c *Client) DeleteFile(ctx context.Context, id string) (string, error) {
	data, gqlErrs, err := c.do(ctx, gqlRequest{
		Query:     mutationDeleteFile,
		Variables: map[string]any{"id": id},
	}, "")
	if err != nil {
		return "", fmt.Errorf("delete file: %w", err)
	}
	if len(gqlErrs) > 0 {
		return "", upstreamErrs("delete file", gqlErrs)
	}

	var out struct {
		DeleteFile struct {
			File []struct {
				Name string `json:"name"`
			} `json:"file"`
		} `json:"deleteFile"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("delete file: %w: %v", coffre.ErrUpstream, err)
	}

	if len(out.DeleteFile.File) == 0 {
		return "", fmt.Errorf("file %s: %w", id, coffre.ErrNotFound)
	}

	return out.DeleteFile.File[0].Name, nil
}
