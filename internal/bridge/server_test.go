package bridge

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptlib/internal/library"
	"github.com/thebtf/promptlib/internal/snapshot"
	"github.com/thebtf/promptlib/pkg/models"
)

// nopLocal discards persistence.
type nopLocal struct{}

func (nopLocal) LoadPrompts(context.Context) ([]*models.Prompt, error) { return nil, nil }
func (nopLocal) SavePrompts(context.Context, []*models.Prompt) error   { return nil }
func (nopLocal) LoadCategories(context.Context) ([]models.Category, error) {
	return models.DefaultCategories(), nil
}
func (nopLocal) SaveCategories(context.Context, []models.Category) error { return nil }
func (nopLocal) LoadSettings(context.Context) (models.Settings, error) {
	return models.DefaultSettings(), nil
}
func (nopLocal) SaveSettings(context.Context, models.Settings) error { return nil }

// testServer creates a bridge over a library holding two prompts.
func testServer(t *testing.T) (*Server, *library.Library) {
	t.Helper()
	lib := library.New(nopLocal{})
	lib.Load(context.Background())
	for _, title := range []string{"first", "second"} {
		_, err := lib.CreatePrompt(context.Background(), library.PromptInput{Title: title, Content: "body of " + title})
		require.NoError(t, err)
	}
	return New(lib, WithVersion("test-1.0"), WithSyncStatus(func() string { return "local_only" })), lib
}

const extensionOrigin = "chrome-extension://abcdefghijklmnop"

func newRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(s, newRequest(method, path, body))
}

func TestHandleHealth(t *testing.T) {
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp["status"])
	assert.Equal(t, "test-1.0", resp["version"])
	assert.Equal(t, "local_only", resp["sync"])
	assert.EqualValues(t, 2, resp["prompts"])
}

func TestGetPrompts_ReturnsBareArray(t *testing.T) {
	s, lib := testServer(t)

	rec := do(t, s, http.MethodGet, "/api/prompts", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	var prompts []*models.Prompt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prompts))
	require.Len(t, prompts, 2)
	assert.Equal(t, lib.Prompts()[0].ID, prompts[0].ID)
}

func TestSavePrompts(t *testing.T) {
	s, lib := testServer(t)
	current := lib.Prompts()
	current[0].Title = "renamed"
	payload, err := json.Marshal(map[string]any{
		"prompts": []any{current[0], map[string]any{"id": "ext-1", "title": "from extension", "content": "c"}},
	})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/prompts", string(payload))
	assert.Equal(t, http.StatusOK, rec.Code)

	got := lib.Prompts()
	require.Len(t, got, 2)
	assert.Equal(t, "renamed", got[0].Title)
	assert.Equal(t, "from extension", got[1].Title)
	assert.Equal(t, "ext-1", got[1].ID)
}

func TestSavePrompts_EmptyListNeedsConsent(t *testing.T) {
	s, lib := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/prompts", `{"prompts":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, lib.Prompts(), 2)

	rec = do(t, s, http.MethodPost, "/api/prompts", `{"prompts":[],"allowEmpty":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, lib.Prompts())
}

func TestSavePrompts_InvariantsHold(t *testing.T) {
	s, lib := testServer(t)
	existing := lib.Prompts()[0]
	_, err := lib.IncrementUsage(context.Background(), existing.ID)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{"prompts": []any{
		map[string]any{"id": existing.ID, "title": " kept ", "content": "c", "tags": []string{"A", "a", "B"}, "usageCount": -5},
		lib.Prompts()[1],
	}})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/prompts", string(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := lib.Prompt(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.Equal(t, 1, got.UsageCount)
	assert.NotNil(t, got.LastUsed)
	assert.True(t, existing.DateAdded.Equal(got.DateAdded))
}

func TestSavePrompts_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"prompts":`},
		{name: "missing prompts", body: `{}`},
		{name: "duplicate ids", body: `{"prompts":[{"id":"a","title":"t","content":"c"},{"id":"a","title":"t","content":"c"}]}`},
		{name: "missing id", body: `{"prompts":[{"title":"t","content":"c"}]}`},
		{name: "blank title", body: `{"prompts":[{"id":"a","title":"   ","content":"c"}]}`},
		{name: "empty content", body: `{"prompts":[{"id":"a","title":"t","content":""}]}`},
		{name: "built-in model in other case", body: `{"prompts":[{"id":"a","title":"t","content":"c","aiModel":"chatgpt"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, lib := testServer(t)
			rec := do(t, s, http.MethodPost, "/api/prompts", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Len(t, lib.Prompts(), 2)
		})
	}
}

func TestUsePrompt(t *testing.T) {
	s, lib := testServer(t)
	id := lib.Prompts()[1].ID

	rec := do(t, s, http.MethodPost, "/api/prompts/"+id+"/use", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var p models.Prompt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 1, p.UsageCount)
	assert.NotNil(t, p.LastUsed)

	rec = do(t, s, http.MethodPost, "/api/prompts/missing/use", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSync_ReturnsSnapshot(t *testing.T) {
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/api/sync", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	snap, err := snapshot.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, snap.Prompts, 2)
	assert.Len(t, snap.Categories, 7)
	assert.Equal(t, snapshot.Version, snap.Version)
}

func TestPreflight(t *testing.T) {
	s, _ := testServer(t)
	req := newRequest(http.MethodOptions, "/api/prompts", "")
	req.Header.Set("Origin", extensionOrigin)

	rec := serve(s, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, extensionOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), TokenHeader)
}

func TestOrigins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    int
	}{
		{name: "no origin", want: http.StatusOK},
		{name: "chrome extension", origin: extensionOrigin, want: http.StatusOK},
		{name: "firefox extension", origin: "moz-extension://1234", want: http.StatusOK},
		{name: "web page", origin: "https://evil.example", want: http.StatusForbidden},
		{name: "configured origin", allowed: []string{extensionOrigin}, origin: extensionOrigin, want: http.StatusOK},
		{name: "other extension when configured", allowed: []string{extensionOrigin}, origin: "chrome-extension://other", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := library.New(nopLocal{})
			s := New(lib, WithAllowedOrigins(tt.allowed...))
			req := newRequest(http.MethodGet, "/api/prompts", "")
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			rec := serve(s, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK && tt.origin != "" {
				assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

// TestCrossSiteSaveRejected covers a web page posting a form-style body.
func TestCrossSiteSaveRejected(t *testing.T) {
	s, lib := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/prompts", strings.NewReader(`{"prompts":[],"allowEmpty":true}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Origin", "https://evil.example")
	rec := serve(s, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/api/prompts", strings.NewReader(`{"prompts":[],"allowEmpty":true}`))
	req.Header.Set("Content-Type", "text/plain")
	rec = serve(s, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	assert.Len(t, lib.Prompts(), 2)
}

func TestToken(t *testing.T) {
	lib := library.New(nopLocal{})
	s := New(lib, WithToken("s3cret"))

	rec := serve(s, newRequest(http.MethodGet, "/api/prompts", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := newRequest(http.MethodGet, "/api/prompts", "")
	req.Header.Set(TokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(s, req).Code)

	req = newRequest(http.MethodGet, "/api/prompts", "")
	req.Header.Set(TokenHeader, "s3cret")
	assert.Equal(t, http.StatusOK, serve(s, req).Code)

	assert.Equal(t, http.StatusOK, serve(s, newRequest(http.MethodGet, "/health", "")).Code)
}

func TestRequireReady(t *testing.T) {
	s, _ := testServer(t)
	s.ready.Store(false)

	rec := do(t, s, http.MethodGet, "/api/prompts", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEvents_StreamLibraryChanges(t *testing.T) {
	s, lib := testServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	next := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}
	assert.Contains(t, next(), "connected")

	id := lib.Prompts()[0].ID
	_, err = lib.ToggleFavorite(ctx, id)
	require.NoError(t, err)

	var ev library.Event
	require.NoError(t, json.Unmarshal([]byte(next()), &ev))
	assert.Equal(t, library.EventPromptUpdated, ev.Type)
	assert.Equal(t, id, ev.ID)
}

func TestServeListener_ShutsDownOnCancel(t *testing.T) {
	s, _ := testServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
