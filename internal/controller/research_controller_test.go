package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"literas-be/internal/dto"
	"literas-be/internal/pkg/logger"
	"literas-be/internal/pkg/serverutils"
	"literas-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResearchService struct {
	service.IResearchService
	running  uuid.UUID
	finished uuid.UUID
	listReq  dto.ListResearchRequest
	started  *uuid.UUID
	failNext bool
}

func (f *fakeResearchService) Start(ctx context.Context, userID *uuid.UUID, req dto.StartResearchRequest) (*dto.StartResearchResponse, error) {
	f.started = userID
	return &dto.StartResearchResponse{SessionId: f.running, Status: "running"}, nil
}

func (f *fakeResearchService) Get(ctx context.Context, id uuid.UUID) (*dto.ResearchSessionResponse, error) {
	switch id {
	case f.running:
		return &dto.ResearchSessionResponse{Id: id, Status: "running", Live: true}, nil
	case f.finished:
		return &dto.ResearchSessionResponse{Id: id, Status: "completed"}, nil
	}
	return nil, service.ErrSessionNotFound
}

func (f *fakeResearchService) List(ctx context.Context, req dto.ListResearchRequest) ([]*dto.ResearchSessionResponse, error) {
	f.listReq = req
	return []*dto.ResearchSessionResponse{{Id: f.running}}, nil
}

func (f *fakeResearchService) Turns(ctx context.Context, id uuid.UUID) ([]*dto.ResearchTurnResponse, error) {
	if id != f.running && id != f.finished {
		return nil, service.ErrSessionNotFound
	}
	return []*dto.ResearchTurnResponse{{Seq: 0, Agent: "user"}}, nil
}

func (f *fakeResearchService) Cancel(ctx context.Context, id uuid.UUID) error {
	switch id {
	case f.running:
		return nil
	case f.finished:
		return service.ErrSessionNotRunning
	}
	return service.ErrSessionNotFound
}

func (f *fakeResearchService) Search(ctx context.Context, req dto.SearchRequest) (*dto.SearchResponse, error) {
	if f.failNext {
		return nil, errors.New("esearch returned status 503")
	}
	return &dto.SearchResponse{TotalUnique: 0}, nil
}

func newResearchApp(svc service.IResearchService) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewResearchController(svc, "").RegisterRoutes(app.Group("/api"))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, serverutils.Response) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out serverutils.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestResearchController_Routes(t *testing.T) {
	svc := &fakeResearchService{running: uuid.New(), finished: uuid.New()}
	app := newResearchApp(svc)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "start", method: "POST", path: "/api/research/sessions", body: `{"topic": "statins after stroke"}`, want: fiber.StatusAccepted},
		{name: "start short topic", method: "POST", path: "/api/research/sessions", body: `{"topic": "ab"}`, want: fiber.StatusBadRequest},
		{name: "start bad body", method: "POST", path: "/api/research/sessions", body: `{`, want: fiber.StatusBadRequest},
		{name: "list", method: "GET", path: "/api/research/sessions", want: fiber.StatusOK},
		{name: "list bad status", method: "GET", path: "/api/research/sessions?status=paused", want: fiber.StatusBadRequest},
		{name: "show", method: "GET", path: "/api/research/sessions/" + svc.running.String(), want: fiber.StatusOK},
		{name: "show bad id", method: "GET", path: "/api/research/sessions/xyz", want: fiber.StatusBadRequest},
		{name: "show unknown", method: "GET", path: "/api/research/sessions/" + uuid.NewString(), want: fiber.StatusNotFound},
		{name: "turns", method: "GET", path: "/api/research/sessions/" + svc.finished.String() + "/turns", want: fiber.StatusOK},
		{name: "turns unknown", method: "GET", path: "/api/research/sessions/" + uuid.NewString() + "/turns", want: fiber.StatusNotFound},
		{name: "cancel running", method: "DELETE", path: "/api/research/sessions/" + svc.running.String(), want: fiber.StatusAccepted},
		{name: "cancel finished", method: "DELETE", path: "/api/research/sessions/" + svc.finished.String(), want: fiber.StatusConflict},
		{name: "search", method: "POST", path: "/api/research/search", body: `{"queries": ["aspirin"]}`, want: fiber.StatusOK},
		{name: "search no queries", method: "POST", path: "/api/research/search", body: `{"queries": []}`, want: fiber.StatusBadRequest},
		{name: "search too many results", method: "POST", path: "/api/research/search", body: `{"queries": ["a"], "max_results": 500}`, want: fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := do(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, code < 300, res.Success)
		})
	}
}

func TestResearchController_ListQuery(t *testing.T) {
	svc := &fakeResearchService{running: uuid.New()}
	app := newResearchApp(svc)

	code, _ := do(t, app, "GET", "/api/research/sessions?page=2&limit=5&status=completed&q=aspirin", "")

	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, dto.ListResearchRequest{Page: 2, Limit: 5, Status: "completed", Query: "aspirin"}, svc.listReq)

	_, _ = do(t, app, "GET", "/api/research/sessions", "")
	assert.Equal(t, 1, svc.listReq.Page)
	assert.Equal(t, 20, svc.listReq.Limit)
}

func TestResearchController_StartWithoutAuthHasNoOwner(t *testing.T) {
	svc := &fakeResearchService{running: uuid.New()}
	app := newResearchApp(svc)

	code, res := do(t, app, "POST", "/api/research/sessions", `{"topic": "aspirin dosing"}`)

	require.Equal(t, fiber.StatusAccepted, code)
	assert.Nil(t, svc.started)
	data := res.Data.(map[string]interface{})
	assert.Equal(t, svc.running.String(), data["session_id"])
}

func TestResearchController_SearchUpstreamFailure(t *testing.T) {
	app := newResearchApp(&fakeResearchService{failNext: true})

	code, res := do(t, app, "POST", "/api/research/search", `{"queries": ["aspirin"]}`)

	assert.Equal(t, fiber.StatusBadGateway, code)
	assert.Contains(t, res.Message, "503")
}

type fakeLogReader struct {
	entries []logger.LogEntry
}

func (f *fakeLogReader) GetLogs(level string, limit, offset int) ([]logger.LogEntry, error) {
	var out []logger.LogEntry
	for _, e := range f.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return []logger.LogEntry{}, nil
	}
	end := min(offset+limit, len(out))
	return out[offset:end], nil
}

func (f *fakeLogReader) GetLogById(id string) (*logger.LogEntry, error) {
	for i := range f.entries {
		if f.entries[i].Id == id {
			return &f.entries[i], nil
		}
	}
	return nil, fmt.Errorf("log not found")
}

func TestSystemController(t *testing.T) {
	reader := &fakeLogReader{entries: []logger.LogEntry{
		{Id: "a", Level: "error", Message: "esearch failed"},
		{Id: "b", Level: "info", Message: "session started"},
	}}
	app := fiber.New()
	NewSystemController(reader, "").RegisterRoutes(app, app.Group("/api"))

	code, res := do(t, app, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.True(t, res.Success)

	code, res = do(t, app, "GET", "/api/admin/logs?level=error", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Len(t, res.Data, 1)

	code, _ = do(t, app, "GET", "/api/admin/logs/b", "")
	assert.Equal(t, fiber.StatusOK, code)

	code, res = do(t, app, "GET", "/api/admin/logs/zzz", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.False(t, res.Success)
}
