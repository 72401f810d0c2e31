package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/terra-clan/challenge-bot/internal/models"
)

const DefaultWandboxURL = "https://wandbox.org"

// Wandbox is a Gateway backed by the wandbox.org HTTP API.
type Wandbox struct {
	baseURL  string
	client   *http.Client
	cacheTTL time.Duration
	save     bool

	refresh   singleflight.Group
	mu        sync.Mutex
	compilers map[models.Language]string // language -> compiler name
	fetchedAt time.Time
}

// Option configures a Wandbox client
type Option func(*Wandbox)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(w *Wandbox) {
		w.client = c
	}
}

// WithCacheTTL sets how long the compiler list is trusted
func WithCacheTTL(ttl time.Duration) Option {
	return func(w *Wandbox) {
		w.cacheTTL = ttl
	}
}

// WithSave asks the service to keep a permalink for every compile
func WithSave(save bool) Option {
	return func(w *Wandbox) {
		w.save = save
	}
}

// NewWandbox creates a client for the service at baseURL
func NewWandbox(baseURL string, timeout time.Duration, opts ...Option) *Wandbox {
	if baseURL == "" {
		baseURL = DefaultWandboxURL
	}
	w := &Wandbox{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		cacheTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type compilerEntry struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Languages returns the languages with at least one compiler, sorted.
func (w *Wandbox) Languages(ctx context.Context) ([]models.Language, error) {
	compilers, err := w.compilerMap(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Language, 0, len(compilers))
	for lang := range compilers {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// compilerMap returns the cached compiler list, refreshing it once it is
// older than the TTL. Concurrent callers share one refresh and w.mu is never
// held across the request.
func (w *Wandbox) compilerMap(ctx context.Context) (map[models.Language]string, error) {
	w.mu.Lock()
	cached, fresh := w.compilers, time.Since(w.fetchedAt) < w.cacheTTL
	w.mu.Unlock()

	if cached != nil && fresh {
		return cached, nil
	}

	// The refresh outlives a caller that gives up; the client timeout bounds it.
	refresh := w.refresh.DoChan("compilers", func() (any, error) {
		return w.refreshCompilers(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		if cached != nil {
			return cached, nil
		}
		return nil, ctx.Err()
	case res := <-refresh:
		if res.Err != nil {
			if cached != nil {
				slog.Warn("compiler list refresh failed, using stale list", "error", res.Err)
				return cached, nil
			}
			return nil, res.Err
		}
		return res.Val.(map[models.Language]string), nil
	}
}

func (w *Wandbox) refreshCompilers(ctx context.Context) (map[models.Language]string, error) {
	compilers, err := w.fetchCompilers(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.compilers = compilers
	w.fetchedAt = time.Now()
	w.mu.Unlock()

	slog.Info("compiler list refreshed", "languages", len(compilers))
	return compilers, nil
}

func (w *Wandbox) fetchCompilers(ctx context.Context) (map[models.Language]string, error) {
	resp, err := doWithRetry(ctx, w.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/api/list.json", nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entries []compilerEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: compiler list: %w", ErrMalformedResponse, err)
	}

	compilers := make(map[models.Language]string)
	for _, e := range entries {
		lang, ok := models.ParseLanguage(e.Language)
		if !ok || e.Name == "" {
			continue
		}
		// First listed compiler wins; the service lists the newest first.
		if _, seen := compilers[lang]; !seen {
			compilers[lang] = e.Name
		}
	}
	return compilers, nil
}

type compileBody struct {
	Compiler          string `json:"compiler"`
	Code              string `json:"code"`
	Stdin             string `json:"stdin"`
	CompilerOptionRaw string `json:"compiler-option-raw"`
	Save              bool   `json:"save"`
}

type compileResponse struct {
	Status          flexInt `json:"status"`
	Signal          string  `json:"signal"`
	CompilerMessage string  `json:"compiler_message"`
	ProgramMessage  string  `json:"program_message"`
	URL             string  `json:"url"`
}

// Compile submits req and decodes the run outcome.
func (w *Wandbox) Compile(ctx context.Context, req models.CompileRequest) (*models.CompileResult, error) {
	compilers, err := w.compilerMap(ctx)
	if err != nil {
		return nil, err
	}
	compiler, ok := compilers[req.Language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	payload, err := json.Marshal(compileBody{
		Compiler:          compiler,
		Code:              req.Code,
		Stdin:             req.Stdin,
		CompilerOptionRaw: req.Flags,
		Save:              w.save,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/api/compile.json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}
	defer resp.Body.Close()

	var body compileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	result := &models.CompileResult{
		CompilerMessage: body.CompilerMessage,
		ProgramMessage:  body.ProgramMessage,
		Signal:          body.Signal,
		URL:             body.URL,
	}
	switch {
	case body.Status.set:
		result.Status = body.Status.value
	case body.Signal != "":
		// Killed before exiting.
		result.Status = -1
	default:
		return nil, fmt.Errorf("%w: no status", ErrMalformedResponse)
	}

	slog.Debug("compile finished",
		"language", req.Language,
		"compiler", compiler,
		"status", result.Status,
	)
	return result, nil
}

// flexInt accepts 0, "0" and "" (unset).
type flexInt struct {
	value int
	set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.New("status is not an integer")
		}
		f.value, f.set = n, true
		return nil
	}
	if err := json.Unmarshal(data, &f.value); err != nil {
		return err
	}
	f.set = true
	return nil
}
