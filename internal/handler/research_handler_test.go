package handler

import (
	"context"
	"iter"
	"net/http/httptest"
	"testing"

	"literas-be/internal/dto"
	"literas-be/internal/pkg/serverutils"
	"literas-be/internal/service"
	"literas-be/pkg/research/session"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	service.IResearchService
	known map[uuid.UUID]bool
}

func (s *stubService) Get(ctx context.Context, id uuid.UUID) (*dto.ResearchSessionResponse, error) {
	if !s.known[id] {
		return nil, service.ErrSessionNotFound
	}
	return &dto.ResearchSessionResponse{Id: id, Status: "running"}, nil
}

func (s *stubService) Observe(ctx context.Context, sess *session.Session) iter.Seq[session.Event] {
	return func(yield func(session.Event) bool) {}
}

func newApp(h *ResearchHandler) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	h.RegisterRoutes(app.Group("/api"))
	return app
}

func TestResearchHandler_Visible(t *testing.T) {
	h := NewResearchHandler(&stubService{}, nil, []string{"Critic", "Validator"}, "", nil)

	tests := []struct {
		name string
		ev   session.Event
		want bool
	}{
		{name: "hidden agent", ev: session.Event{Type: session.EventUpdate, Agent: "Critic"}, want: false},
		{name: "visible agent", ev: session.Event{Type: session.EventUpdate, Agent: "SynthesisAgent"}, want: true},
		{name: "bootstrap", ev: session.Event{Type: session.EventUpdate, Agent: "user"}, want: true},
		{name: "error always", ev: session.Event{Type: session.EventError, Message: "boom"}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.visible(tt.ev))
		})
	}
}

func TestResearchHandler_Routes(t *testing.T) {
	known := uuid.New()
	svc := &stubService{known: map[uuid.UUID]bool{known: true}}

	tests := []struct {
		name   string
		secret string
		path   string
		token  string
		want   int
	}{
		{name: "stream needs upgrade", path: "/api/research/ws", want: fiber.StatusUpgradeRequired},
		{name: "stream needs token", secret: "s3cret", path: "/api/research/ws", want: fiber.StatusUnauthorized},
		{name: "stream with token", secret: "s3cret", path: "/api/research/ws", token: "s3cret", want: fiber.StatusUpgradeRequired},
		{name: "watch bad id", path: "/api/research/sessions/nope/watch", want: fiber.StatusBadRequest},
		{name: "watch unknown", path: "/api/research/sessions/" + uuid.NewString() + "/watch", want: fiber.StatusNotFound},
		{name: "watch known", path: "/api/research/sessions/" + known.String() + "/watch", want: fiber.StatusUpgradeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(NewResearchHandler(svc, nil, nil, tt.secret, nil))
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.token != "" {
				signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": uuid.NewString()}).SignedString([]byte(tt.token))
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer "+signed)
			}

			resp, err := app.Test(req)

			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
