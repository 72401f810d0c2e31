package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// Client is a Go SDK for the challenge-bot admin API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new challenge-bot client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// SessionListOptions narrows ListSessions
type SessionListOptions struct {
	OwnerID   string
	ChannelID string
}

// CompilationListOptions narrows ListCompilations
type CompilationListOptions struct {
	OwnerID  string
	Language string
	Limit    int
	Offset   int
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListSessions returns the running challenge sessions
func (c *Client) ListSessions(ctx context.Context, opts SessionListOptions) ([]models.SessionInfo, error) {
	q := url.Values{}
	setQuery(q, "owner_id", opts.OwnerID)
	setQuery(q, "channel_id", opts.ChannelID)

	data, err := get[struct {
		Sessions []models.SessionInfo `json:"sessions"`
	}](ctx, c, "/api/v1/sessions", q)
	if err != nil {
		return nil, err
	}
	return data.Sessions, nil
}

// GetSession retrieves a session by ID
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionInfo, error) {
	data, err := get[models.SessionInfo](ctx, c, "/api/v1/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return &data, nil
}

// CancelSession stops a session and removes its messages
func (c *Client) CancelSession(ctx context.Context, id string) error {
	_, err := do[map[string]string](ctx, c, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil)
	return err
}

// ListLevels returns one summary per difficulty level
func (c *Client) ListLevels(ctx context.Context) ([]models.LevelSummary, error) {
	data, err := get[struct {
		Levels []models.LevelSummary `json:"levels"`
	}](ctx, c, "/api/v1/catalog/levels", nil)
	if err != nil {
		return nil, err
	}
	return data.Levels, nil
}

// ListChallenges returns the challenges on a level, optionally only those
// solvable in language
func (c *Client) ListChallenges(ctx context.Context, level int, language string) ([]models.ChallengeSummary, error) {
	q := url.Values{}
	setQuery(q, "language", language)

	data, err := get[struct {
		Challenges []models.ChallengeSummary `json:"challenges"`
	}](ctx, c, fmt.Sprintf("/api/v1/catalog/levels/%d/challenges", level), q)
	if err != nil {
		return nil, err
	}
	return data.Challenges, nil
}

// ListLanguages reports which languages have templates and challenges
func (c *Client) ListLanguages(ctx context.Context) ([]models.LanguageInfo, error) {
	data, err := get[struct {
		Languages []models.LanguageInfo `json:"languages"`
	}](ctx, c, "/api/v1/catalog/languages", nil)
	if err != nil {
		return nil, err
	}
	return data.Languages, nil
}

// ListCompilations reads the compilation journal, newest first
func (c *Client) ListCompilations(ctx context.Context, opts CompilationListOptions) ([]models.CompilationRecord, error) {
	q := url.Values{}
	setQuery(q, "owner_id", opts.OwnerID)
	setQuery(q, "language", opts.Language)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	data, err := get[struct {
		Compilations []models.CompilationRecord `json:"compilations"`
	}](ctx, c, "/api/v1/compilations", q)
	if err != nil {
		return nil, err
	}
	return data.Compilations, nil
}

// Stats returns compile counters per language
func (c *Client) Stats(ctx context.Context) ([]models.CompilationStats, error) {
	data, err := get[struct {
		Stats []models.CompilationStats `json:"stats"`
	}](ctx, c, "/api/v1/compilations/stats", nil)
	if err != nil {
		return nil, err
	}
	return data.Stats, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := do[map[string]string](ctx, c, http.MethodGet, "/health", nil)
	return err
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func get[T any](ctx context.Context, c *Client, path string, q url.Values) (T, error) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return do[T](ctx, c, http.MethodGet, path, nil)
}

// do performs a request and unwraps the response envelope
func do[T any](ctx context.Context, c *Client, method, path string, body io.Reader) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return zero, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return zero, decodeError(resp.StatusCode, respBody)
	}

	var result envelope[T]
	if err := json.Unmarshal(respBody, &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.Success {
		return zero, decodeError(resp.StatusCode, respBody)
	}

	return result.Data, nil
}

// decodeError reads the envelope's error, falling back to the raw body
func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}

	var wrapped envelope[json.RawMessage]
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil {
		apiErr.Code = wrapped.Error.Code
		apiErr.Message = wrapped.Error.Message
		return apiErr
	}

	apiErr.Code = http.StatusText(status)
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
