package hamasasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBasePath is the API prefix the server mounts its routes under.
const DefaultBasePath = "/hamasa-api/v1"

// Client is a minimal Hamasa HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: DefaultBasePath,
		Timeout:  10 * time.Second,
	}
}

// Account is the user returned by login and /auth/me (partial).
type Account struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	UserType    string `json:"user_type"`
	ClientID    string `json:"client_id"`
	IsActive    bool   `json:"is_active"`
}

type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserType     string    `json:"user_type"`
	User         Account   `json:"user"`
}

type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ClientID    string `json:"client_id"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type ProgressEntry struct {
	ID             string `json:"id"`
	StageNo        int    `json:"stage_no"`
	PreviousStatus string `json:"previous_status"`
	CurrentStatus  string `json:"current_status"`
	Action         string `json:"action"`
	Comment        string `json:"comment"`
	OwnerID        string `json:"owner_id"`
	OwnerType      string `json:"owner_type"`
	CreatedAt      string `json:"created_at"`
}

type ProjectTransition struct {
	Project  Project       `json:"project"`
	Progress ProgressEntry `json:"progress"`
}

type Report struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	PublicationDate string         `json:"publication_date"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Source          string         `json:"source"`
	MediaCategory   string         `json:"media_category"`
	Link            string         `json:"link"`
	Status          string         `json:"status"`
	ExtraMetadata   map[string]any `json:"extra_metadata"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Count    int  `json:"count"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Next     *int `json:"next"`
	Previous *int `json:"previous"`
	Results  []T  `json:"results"`
}

// MLDetails is the project context an analysis job needs.
type MLDetails struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	ThematicAreas []string `json:"thematic_areas"`
	MediaSources  []string `json:"media_sources"`
}

type ImportResult struct {
	UID            string `json:"uid"`
	TotalRows      int    `json:"total_rows"`
	ReportsCreated int    `json:"reports_created"`
	ReportsSkipped int    `json:"reports_skipped"`
}

// APIError wraps non-2xx responses and decodes the error envelope when present.
type APIError struct {
	StatusCode int
	Detail     string         `json:"detail"`
	Code       string         `json:"code"`
	Context    map[string]any `json:"context"`
	Body       string         `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s detail=%s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for tokens and keeps the access token for later calls.
func (c *Client) Login(ctx context.Context, identifier, password string) (Tokens, error) {
	var resp Tokens
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"identifier": identifier, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.AccessToken
	}
	return resp, err
}

// Refresh swaps a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var resp Tokens
	err := c.do(ctx, http.MethodPost, "auth/refresh-token", map[string]any{"refresh_token": refreshToken}, &resp)
	if err == nil {
		c.BearerToken = resp.AccessToken
	}
	return resp, err
}

func (c *Client) Me(ctx context.Context) (Account, error) {
	var resp Account
	err := c.do(ctx, http.MethodGet, "auth/me", nil, &resp)
	return resp, err
}

// ListProjects returns one page of the projects visible to the caller.
func (c *Client) ListProjects(ctx context.Context, status string, page int) (Page[Project], error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var resp Page[Project]
	err := c.do(ctx, http.MethodGet, withQuery("projects", q), nil, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetProjectStatus moves a project along its lifecycle.
func (c *Client) SetProjectStatus(ctx context.Context, id, status, comment string) (ProjectTransition, error) {
	var resp ProjectTransition
	body := map[string]any{"status": status, "comment": comment}
	err := c.do(ctx, http.MethodPatch, "projects/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

func (c *Client) ProjectProgress(ctx context.Context, id string) ([]ProgressEntry, error) {
	var resp []ProgressEntry
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id)+"/progress", nil, &resp)
	return resp, err
}

func (c *Client) MLDetails(ctx context.Context, projectID string) (MLDetails, error) {
	var resp MLDetails
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID)+"/ml-details", nil, &resp)
	return resp, err
}

// ImportCSV asks the server to fetch an analysis CSV and file its rows as reports.
func (c *Client) ImportCSV(ctx context.Context, projectID, csvURL string) (ImportResult, error) {
	var resp ImportResult
	err := c.do(ctx, http.MethodPost, "projects/ml-csv-url", map[string]any{"uid": projectID, "csv_url": csvURL}, &resp)
	return resp, err
}

func (c *Client) ListReports(ctx context.Context, projectID, status string, page int) (Page[Report], error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var resp Page[Report]
	err := c.do(ctx, http.MethodGet, withQuery("project/"+url.PathEscape(projectID)+"/reports", q), nil, &resp)
	return resp, err
}

// SetReportStatus verifies or rejects a report.
func (c *Client) SetReportStatus(ctx context.Context, id, status, comment string) (Report, error) {
	var resp struct {
		Report Report `json:"report"`
	}
	body := map[string]any{"status": status, "comment": comment}
	err := c.do(ctx, http.MethodPatch, "project/report/"+url.PathEscape(id)+"/status", body, &resp)
	return resp.Report, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		_ = json.Unmarshal(b, apiErr)
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
