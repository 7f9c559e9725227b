// Package apptrust is the REST client for the application-lifecycle
// platform: version status reads, stage promotion, terminal release,
// rollback, version maintenance, and evidence creation.
package apptrust

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// projectHeader carries the project scope on maintenance and evidence
// endpoints. The platform rejects it on promote/release paths, so the
// client only sets it where accepted.
const projectHeader = "X-JFrog-Project"

const maxErrorBody = 8 << 10

type Config struct {
	BaseURL    string
	Token      string
	ProjectKey string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tracer     *Tracer
}

// Client issues authenticated calls against the platform. All calls
// are single-attempt: a failed call is fatal to the invoking step and
// retrying is left to the next CI invocation.
type Client struct {
	baseURL string
	token   string
	project string
	client  *http.Client
	tracer  *Tracer
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("apptrust base url required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("apptrust access token required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = NewTracer(TraceNone, nil)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		project: cfg.ProjectKey,
		client:  client,
		tracer:  tracer,
	}, nil
}

// VersionContent is the platform's view of one application version.
// The platform may return partial content for unassigned versions, so
// absent fields decode as empty rather than failing.
type VersionContent struct {
	CurrentStage  string `json:"current_stage"`
	ReleaseStatus string `json:"release_status"`
}

func (c *Client) VersionContent(ctx context.Context, app, version string) (VersionContent, error) {
	var out VersionContent
	path := fmt.Sprintf("/applications/%s/versions/%s/content", url.PathEscape(app), url.PathEscape(version))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out, true); err != nil {
		return VersionContent{}, err
	}
	return out, nil
}

// Promote moves the version to targetAPIStage, a non-terminal hop.
func (c *Client) Promote(ctx context.Context, app, version, targetAPIStage string) error {
	body := map[string]string{
		"target_stage":   targetAPIStage,
		"promotion_type": "move",
	}
	path := fmt.Sprintf("/applications/%s/versions/%s/promote", url.PathEscape(app), url.PathEscape(version))
	return c.do(ctx, http.MethodPost, path, url.Values{"async": {"false"}}, body, nil, false)
}

// ReleaseRequest shapes the terminal hop. Zero-value fields fall back
// to a "move" promotion over repository keys derived from the
// application key.
type ReleaseRequest struct {
	PromotionType          string   `json:"promotion_type"`
	IncludedRepositoryKeys []string `json:"included_repository_keys,omitempty"`
}

// Release moves the version to the terminal stage.
func (c *Client) Release(ctx context.Context, app, version string, req ReleaseRequest) error {
	if req.PromotionType == "" {
		req.PromotionType = "move"
	}
	if len(req.IncludedRepositoryKeys) == 0 {
		req.IncludedRepositoryKeys = DeriveRepositoryKeys(c.project, app)
	}
	path := fmt.Sprintf("/applications/%s/versions/%s/release", url.PathEscape(app), url.PathEscape(version))
	return c.do(ctx, http.MethodPost, path, url.Values{"async": {"false"}}, req, nil, false)
}

// DeriveRepositoryKeys infers the release repositories for an
// application: its docker and python release repos, scoped to the
// project and the service name (the application key minus the project
// prefix).
func DeriveRepositoryKeys(project, app string) []string {
	service := strings.TrimPrefix(app, project+"-")
	return []string{
		fmt.Sprintf("%s-%s-internal-docker-release-local", project, service),
		fmt.Sprintf("%s-%s-internal-python-release-local", project, service),
	}
}

// Rollback invokes the dedicated rollback endpoint. fromStage must be
// the version's current stage.
func (c *Client) Rollback(ctx context.Context, app, version, fromStage string) error {
	body := map[string]string{"from_stage": fromStage}
	path := fmt.Sprintf("/applications/%s/versions/%s/rollback", url.PathEscape(app), url.PathEscape(version))
	return c.do(ctx, http.MethodPost, path, nil, body, nil, true)
}

type VersionSummary struct {
	Version       string `json:"version"`
	Tag           string `json:"tag"`
	ReleaseStatus string `json:"release_status"`
}

type versionList struct {
	Versions []VersionSummary `json:"versions"`
}

// ListVersions returns the application's versions, newest first.
func (c *Client) ListVersions(ctx context.Context, app string) ([]VersionSummary, error) {
	var out versionList
	path := fmt.Sprintf("/applications/%s/versions", url.PathEscape(app))
	query := url.Values{
		"limit":     {"1000"},
		"order_by":  {"created"},
		"order_asc": {"false"},
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

// VersionPatch updates version metadata. Nil fields are left alone.
type VersionPatch struct {
	Tag              *string             `json:"tag,omitempty"`
	Properties       map[string][]string `json:"properties,omitempty"`
	DeleteProperties []string            `json:"delete_properties,omitempty"`
}

func (c *Client) PatchVersion(ctx context.Context, app, version string, patch VersionPatch) error {
	path := fmt.Sprintf("/applications/%s/versions/%s", url.PathEscape(app), url.PathEscape(version))
	return c.do(ctx, http.MethodPatch, path, nil, patch, nil, true)
}

// EvidenceRequest attaches one signed predicate document to a version.
type EvidenceRequest struct {
	ReleaseBundle        string          `json:"release_bundle"`
	ReleaseBundleVersion string          `json:"release_bundle_version"`
	PredicateType        string          `json:"predicate_type"`
	Predicate            json.RawMessage `json:"predicate"`
	ProviderID           string          `json:"provider_id"`
	SigningKeyID         string          `json:"signing_key_id,omitempty"`
	Signature            string          `json:"signature,omitempty"`
}

func (c *Client) CreateEvidence(ctx context.Context, req EvidenceRequest) error {
	return c.do(ctx, http.MethodPost, "/evidence", nil, req, nil, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, projectScoped bool) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var payload []byte
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if projectScoped && c.project != "" {
		req.Header.Set(projectHeader, c.project)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.tracer.Request(method, fullURL, req.Header, payload)
		return &UpstreamError{Method: method, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Error bodies are capped; a success body is read in full so
		// large version listings decode intact.
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.tracer.Request(method, fullURL, req.Header, payload)
		return &UpstreamError{Method: method, URL: fullURL, Status: resp.StatusCode, Body: string(data)}
	}
	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &UpstreamError{Method: method, URL: fullURL, Err: readErr}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", fullURL, err)
		}
	}
	return nil
}
