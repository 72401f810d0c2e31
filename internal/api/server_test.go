package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/challenge-bot/internal/catalog"
	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/config"
	"github.com/terra-clan/challenge-bot/internal/health"
	"github.com/terra-clan/challenge-bot/internal/models"
	"github.com/terra-clan/challenge-bot/internal/session"
	"github.com/terra-clan/challenge-bot/internal/state"
	"github.com/terra-clan/challenge-bot/internal/storage"
)

const (
	adminToken = "sk_admin_token"
	readToken  = "sk_read_token"
)

type fakeSessions struct {
	infos     []models.SessionInfo
	cancelled []string
}

func (f *fakeSessions) List() []models.SessionInfo { return f.infos }

func (f *fakeSessions) Get(id string) (models.SessionInfo, bool) {
	for _, info := range f.infos {
		if info.ID == id {
			return info, true
		}
	}
	return models.SessionInfo{}, false
}

func (f *fakeSessions) Cancel(_ context.Context, id string) error {
	if _, ok := f.Get(id); !ok {
		return session.ErrNotFound
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fixture struct {
	server   *Server
	sessions *fakeSessions
	journal  *storage.MemoryRepository
	stats    *state.MemoryStore
	registry *health.Registry
	hub      *chat.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.SetTemplate(models.LangPython, "{USERCODE}\nprint({TESTS})\n"))
	require.NoError(t, cat.Add(&models.Challenge{
		Name:      "Sum",
		Tags:      []string{"math"},
		Languages: []models.Language{models.LangPython, models.LangJavaScript},
		Level:     0,
		LevelName: models.DifficultyName(0),
		Tests:     map[models.Language][]string{models.LangPython: {"add(1, 2) == 3"}, models.LangJavaScript: {"add(1, 2) === 3"}},
		Hints:     map[models.Language][]string{models.WildcardLanguage: {"use +"}},
	}))
	require.NoError(t, cat.Add(&models.Challenge{
		Name:      "Reverse",
		Languages: []models.Language{models.LangJavaScript},
		Level:     1,
		LevelName: models.DifficultyName(1),
		Tests:     map[models.Language][]string{models.LangJavaScript: {"rev('ab') === 'ba'"}},
	}))

	f := &fixture{
		sessions: &fakeSessions{infos: []models.SessionInfo{
			{ID: "s1", OwnerID: "alice", ChannelID: "c1", Language: models.LangPython, State: models.StateAwaitingInput},
			{ID: "s2", OwnerID: "bob", ChannelID: "c2", Language: models.LangGo, State: models.StateCompiling},
		}},
		journal:  storage.NewMemoryRepository(10),
		stats:    state.NewMemoryStore(),
		registry: health.NewRegistry(time.Second),
		hub:      chat.NewHub(chat.User{ID: "bot", Tag: "bot#0001"}),
	}
	f.server = NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080, APIToken: adminToken, ReadToken: readToken}, Deps{
		Catalog:  cat,
		Sessions: f.sessions,
		Journal:  f.journal,
		Stats:    f.stats,
		Health:   f.registry,
		Hub:      f.hub,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	var resp apiResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataField[T any](t *testing.T, resp apiResponse, key string) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data.(map[string]any)[key])
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	rec, resp := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestReadyReportsDependencies(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("redis", f.stats)

	rec, resp := f.do(t, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"redis": "ok"}, dataField[map[string]string](t, resp, "checks"))

	f.registry.Register("postgres", health.CheckerFunc(func(context.Context) error { return errors.New("connection refused") }))
	rec, resp = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "connection refused", dataField[map[string]string](t, resp, "checks")["postgres"])
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "missing_api_key", resp.Error.Code)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/sessions", "sk_wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_api_key", resp.Error.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/sessions", readToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodDelete, "/api/v1/sessions/s1", readToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "permission_denied", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, models.PermSessionsWrite)
	assert.Empty(t, f.sessions.cancelled)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/levels", nil)
	req.Header.Set("X-API-Key", readToken)
	raw := httptest.NewRecorder()
	f.server.Router().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusOK, raw.Code)
}

func TestAuthenticationDisabledWithoutTokens(t *testing.T) {
	f := newFixture(t)
	open := NewServer(config.ServerConfig{Port: 8080}, f.server.deps)

	rec := httptest.NewRecorder()
	open.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s2"}, f.sessions.cancelled)
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	_, resp := f.do(t, http.MethodGet, "/api/v1/catalog/levels", readToken)
	levels := dataField[[]models.LevelSummary](t, resp, "levels")
	assert.Equal(t, []models.LevelSummary{
		{Level: 0, Name: "beginner", Challenges: 1},
		{Level: 1, Name: "easy", Challenges: 1},
	}, levels)

	_, resp = f.do(t, http.MethodGet, "/api/v1/catalog/levels/0/challenges", readToken)
	challenges := dataField[[]models.ChallengeSummary](t, resp, "challenges")
	require.Len(t, challenges, 1)
	assert.Equal(t, "Sum", challenges[0].Name)
	assert.Equal(t, 1, challenges[0].Hints)

	_, resp = f.do(t, http.MethodGet, "/api/v1/catalog/levels/1/challenges?language=py", readToken)
	assert.Empty(t, dataField[[]models.ChallengeSummary](t, resp, "challenges"))

	rec, _ := f.do(t, http.MethodGet, "/api/v1/catalog/levels/7/challenges", readToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/catalog/levels/x/challenges", readToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, resp = f.do(t, http.MethodGet, "/api/v1/catalog/languages", readToken)
	langs := dataField[[]models.LanguageInfo](t, resp, "languages")
	assert.Contains(t, langs, models.LanguageInfo{Language: models.LangPython, Template: true, Challenges: 1})
	assert.Contains(t, langs, models.LanguageInfo{Language: models.LangJavaScript, Template: false, Challenges: 2})
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)

	_, resp := f.do(t, http.MethodGet, "/api/v1/sessions?owner_id=bob", readToken)
	sessions := dataField[[]models.SessionInfo](t, resp, "sessions")
	require.Len(t, sessions, 1)
	assert.Equal(t, "s2", sessions[0].ID)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/sessions/s1", readToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", resp.Data.(map[string]any)["owner_id"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/sessions/nope", readToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/sessions/s1", adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1"}, f.sessions.cancelled)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/sessions/nope", adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompilationEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.journal.RecordCompilation(ctx, &models.CompilationRecord{OwnerID: "alice", Language: models.LangPython, Challenge: "Sum", Succeeded: true}))
	require.NoError(t, f.journal.RecordCompilation(ctx, &models.CompilationRecord{OwnerID: "bob", Language: models.LangGo, Challenge: "Sum", Status: 1}))
	require.NoError(t, f.stats.IncrCompilation(ctx, models.LangPython, true))
	require.NoError(t, f.stats.IncrCompilation(ctx, models.LangPython, false))

	_, resp := f.do(t, http.MethodGet, "/api/v1/compilations?language=python", readToken)
	records := dataField[[]models.CompilationRecord](t, resp, "compilations")
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].OwnerID)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/compilations?language=cobol", readToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, resp = f.do(t, http.MethodGet, "/api/v1/compilations/stats", readToken)
	stats := dataField[[]models.CompilationStats](t, resp, "stats")
	assert.Equal(t, []models.CompilationStats{{Language: models.LangPython, Succeeded: 1, Failed: 1}}, stats)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ChatMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ChatMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestChatWebsocketBridgesHub(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Router())
	defer srv.Close()

	earlier := f.hub.PostAs("c1", chat.User{ID: "carol", Tag: "carol#3"}, "hello")

	conn := dial(t, srv, "channel=c1&user=alice&tag=alice%231&token="+adminToken)
	assert.Equal(t, "connected", readFrame(t, conn).Type)
	history := readFrame(t, conn)
	require.Equal(t, "history", history.Type)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, earlier.ID, history.Messages[0].ID)

	require.NoError(t, conn.WriteJSON(ChatMessage{Type: "message", Content: ";challenge python"}))
	frame := readFrame(t, conn)
	require.Equal(t, "event", frame.Type)
	assert.Equal(t, chat.EventMessageCreated, frame.Event.Type)
	assert.Equal(t, "alice", frame.Event.Message.Author.ID)
	assert.Equal(t, ";challenge python", frame.Event.Message.Content)

	posted := f.hub.History("c1", 1)[0]
	require.NoError(t, conn.WriteJSON(ChatMessage{Type: "react", MessageID: posted.ID, Emoji: "💡"}))
	frame = readFrame(t, conn)
	require.Equal(t, chat.EventReactionAdded, frame.Event.Type)
	assert.Equal(t, "💡", frame.Event.Reaction.Emoji)

	// Events from other channels are not forwarded.
	f.hub.PostAs("c2", chat.User{ID: "dave"}, "elsewhere")
	require.NoError(t, conn.WriteJSON(ChatMessage{Type: "dance"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Contains(t, frame.Data, "unknown message type")
}

func TestChatWebsocketRejectsBadHandshakes(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Router())
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?"
	cases := map[string]struct {
		query  string
		status int
	}{
		"no token":     {query: "channel=c1&user=alice", status: http.StatusUnauthorized},
		"read only":    {query: "channel=c1&user=alice&token=" + readToken, status: http.StatusForbidden},
		"no channel":   {query: "user=alice&token=" + adminToken, status: http.StatusBadRequest},
		"bot identity": {query: "channel=c1&user=bot&token=" + adminToken, status: http.StatusForbidden},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(base+tc.query, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, CallerFrom(ctx))
	assert.Equal(t, "unknown", callerName(ctx))

	ctx = WithCaller(ctx, &models.ApiClient{Name: "reader"})
	require.NotNil(t, CallerFrom(ctx))
	assert.Equal(t, "reader", callerName(ctx))
}
