package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/hierview/internal/config"
	"github.com/danielolaszy/hierview/internal/jira"
	"github.com/danielolaszy/hierview/pkg/models"
)

// stubGateway is a scriptable Gateway for handler tests.
type stubGateway struct {
	ready    bool
	top      []models.Issue
	children map[string][]models.Issue

	epicErr    error
	taskErr    error
	commentErr error

	epicCalls    int
	taskCalls    int
	commentCalls int

	lastFilter models.Filter
}

func (g *stubGateway) TopLevel(ctx context.Context, filter models.Filter) ([]models.Issue, error) {
	g.lastFilter = filter
	return g.top, nil
}

func (g *stubGateway) Children(ctx context.Context, parent models.Issue) ([]models.Issue, error) {
	return g.children[parent.Key], nil
}

func (g *stubGateway) CreateEpic(ctx context.Context, req models.CreateEpicRequest) (models.Issue, error) {
	g.epicCalls++
	if g.epicErr != nil {
		return models.Issue{}, g.epicErr
	}
	return models.Issue{Key: "RHOAIENG-55", Type: models.TypeEpic, Summary: req.Summary, ParentKey: req.StratKey}, nil
}

func (g *stubGateway) CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Issue, error) {
	g.taskCalls++
	if g.taskErr != nil {
		return models.Issue{}, g.taskErr
	}
	return models.Issue{Key: "RHOAIENG-56", Type: models.TypeTask, Summary: req.Summary, ParentKey: req.EpicKey}, nil
}

func (g *stubGateway) AddComment(ctx context.Context, issueKey, body string) error {
	g.commentCalls++
	return g.commentErr
}

func (g *stubGateway) Ready() bool {
	return g.ready
}

func newTestServer(gateway Gateway) *Server {
	cfg := &config.Config{
		Jira: config.JiraConfig{
			URL:              "https://jira.example.com",
			Token:            "test-token",
			DefaultComponent: "AI Safety",
		},
	}
	return New(cfg, gateway)
}

type sseFrame struct {
	event string
	data  string
}

// readFrames parses a complete SSE response body into frames.
func readFrames(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	scanner := bufio.NewScanner(strings.NewReader(body))
	var frame sseFrame
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			frame.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if frame.event != "" {
				frames = append(frames, frame)
			}
			frame = sseFrame{}
		}
	}
	return frames
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{"credential usable", true, http.StatusOK, "ok"},
		{"credential missing", false, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubGateway{ready: tt.ready})
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestIndexServesViewer(t *testing.T) {
	s := newTestServer(&stubGateway{ready: true})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "JIRA Hierarchy Viewer")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no-such-page", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamEndToEnd(t *testing.T) {
	gateway := &stubGateway{
		ready: true,
		top:   []models.Issue{{Key: "RFE-1", Type: models.TypeRFE, Summary: "A feature"}},
		children: map[string][]models.Issue{
			"RFE-1": {{Key: "STRAT-1", Type: models.TypeStrat, ParentKey: "RFE-1"}},
		},
	}
	s := newTestServer(gateway)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/hierarchy/stream?component=AI+Safety&top_level=rfe")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	var body strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		body.WriteString(scanner.Text())
		body.WriteString("\n")
	}

	frames := readFrames(t, body.String())
	var kinds []string
	for _, frame := range frames {
		kinds = append(kinds, frame.event)
	}
	assert.Equal(t, []string{
		"node-added", "level-complete", "node-added", "level-complete", "done",
	}, kinds)

	var first struct {
		Node models.Issue `json:"node"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[0].data), &first))
	assert.Equal(t, "RFE-1", first.Node.Key)

	assert.Equal(t, "AI Safety", gateway.lastFilter.Component)
	assert.Equal(t, models.TypeRFE, gateway.lastFilter.TopLevel)
}

func TestStreamDefaultsComponent(t *testing.T) {
	gateway := &stubGateway{ready: true}
	s := newTestServer(gateway)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hierarchy/stream", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AI Safety", gateway.lastFilter.Component)
}

func TestStreamInvalidTopLevel(t *testing.T) {
	s := newTestServer(&stubGateway{ready: true})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hierarchy/stream?top_level=bogus", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestStreamRejectsSecondStreamOnConnection(t *testing.T) {
	s := newTestServer(&stubGateway{ready: true})

	guard := new(atomic.Bool)
	guard.Store(true) // a stream is already active on this connection

	req := httptest.NewRequest(http.MethodGet, "/api/hierarchy/stream", nil)
	req = req.WithContext(context.WithValue(req.Context(), connStreamKey{}, guard))

	rec := httptest.NewRecorder()
	s.handleStream(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
	assert.True(t, guard.Load(), "guard must stay held by the active stream")
}

func TestCreateEpicValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing summary", `{"strat_key":"RHAISTRAT-7"}`},
		{"missing strat key", `{"summary":"New epic"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &stubGateway{ready: true}
			s := newTestServer(gateway)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/create-epic", strings.NewReader(tt.body))
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "invalid_request")
			assert.Zero(t, gateway.epicCalls, "invalid requests must not reach the adapter")
		})
	}
}

func TestCreateEpicSuccess(t *testing.T) {
	gateway := &stubGateway{ready: true}
	s := newTestServer(gateway)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/create-epic",
		strings.NewReader(`{"summary":"New epic","strat_key":"RHAISTRAT-7","description":"details"}`))
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gateway.epicCalls)

	var response struct {
		Success bool         `json:"success"`
		Epic    models.Issue `json:"epic"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "RHOAIENG-55", response.Epic.Key)
	assert.Equal(t, "RHAISTRAT-7", response.Epic.ParentKey)
}

func TestCreateTaskValidation(t *testing.T) {
	gateway := &stubGateway{ready: true}
	s := newTestServer(gateway)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/create-task", strings.NewReader(`{"summary":"New task"}`))
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, gateway.taskCalls)
}

func TestCreateTaskSuccess(t *testing.T) {
	gateway := &stubGateway{ready: true}
	s := newTestServer(gateway)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/create-task",
		strings.NewReader(`{"summary":"New task","epic_key":"RHOAIENG-55","issue_type":"Spike"}`))
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gateway.taskCalls)
	assert.Contains(t, rec.Body.String(), "RHOAIENG-56")
}

func TestAddCommentNotFound(t *testing.T) {
	gateway := &stubGateway{
		ready:      true,
		commentErr: fmt.Errorf("adding comment: %w", jira.ErrNotFound),
	}
	s := newTestServer(gateway)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/add-comment",
		strings.NewReader(`{"issue_key":"RHOAIENG-404","comment":"hello"}`))
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestAddCommentValidation(t *testing.T) {
	gateway := &stubGateway{ready: true}
	s := newTestServer(gateway)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/add-comment", strings.NewReader(`{"issue_key":"RHOAIENG-1"}`))
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, gateway.commentCalls)
}

func TestMutationsRejectWrongMethod(t *testing.T) {
	s := newTestServer(&stubGateway{ready: true})

	for _, path := range []string{"/api/create-epic", "/api/create-task", "/api/add-comment"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{jira.ErrInvalidRequest, http.StatusBadRequest},
		{jira.ErrUnauthorized, http.StatusUnauthorized},
		{jira.ErrNotFound, http.StatusNotFound},
		{jira.ErrRemoteRejected, http.StatusUnprocessableEntity},
		{jira.ErrRemoteUnavailable, http.StatusBadGateway},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(fmt.Errorf("wrapped: %w", tt.err)))
	}
}
