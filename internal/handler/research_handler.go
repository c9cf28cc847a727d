package handler

import (
	"context"
	"errors"
	"strings"

	"literas-be/internal/pkg/logger"
	"literas-be/internal/pkg/serverutils"
	"literas-be/internal/service"
	internalWS "literas-be/internal/websocket"
	"literas-be/pkg/research/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const handlerModule = "ResearchHandler"

// ResearchHandler serves the chat-style websocket stream and the watcher feed.
type ResearchHandler struct {
	service service.IResearchService
	hub     *internalWS.Hub
	hidden  map[string]bool
	secret  string
	logger  logger.ILogger
}

func NewResearchHandler(svc service.IResearchService, hub *internalWS.Hub, hiddenAgents []string, jwtSecret string, log logger.ILogger) *ResearchHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	hidden := make(map[string]bool, len(hiddenAgents))
	for _, a := range hiddenAgents {
		hidden[a] = true
	}
	return &ResearchHandler{
		service: svc,
		hub:     hub,
		hidden:  hidden,
		secret:  jwtSecret,
		logger:  log,
	}
}

// visible reports whether an event goes to the chat client. Errors always do.
func (h *ResearchHandler) visible(ev session.Event) bool {
	return ev.Type == session.EventError || !h.hidden[ev.Agent]
}

// ServeWs upgrades the connection and runs one session per text frame, the
// frame being the research topic. Sessions on one connection run one after
// another.
func (h *ResearchHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID := userIDFromLocals(c)

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info(handlerModule, "Websocket connected", map[string]interface{}{"remote": conn.RemoteAddr().String()})
		defer h.logger.Info(handlerModule, "Websocket disconnected", map[string]interface{}{"remote": conn.RemoteAddr().String()})

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			topic := strings.TrimSpace(string(msg))
			if topic == "" {
				_ = conn.WriteJSON(session.Event{Type: session.EventError, Message: "empty research topic"})
				continue
			}
			if !h.stream(conn, userID, topic) {
				return
			}
		}
	})(c)
}

// stream runs one session over conn. It returns false once the peer is gone.
func (h *ResearchHandler) stream(conn *websocket.Conn, userID *uuid.UUID, topic string) bool {
	sess := h.service.Open(userID, topic)
	h.logger.Info(handlerModule, "Streaming session", map[string]interface{}{
		"session_id": sess.ID(),
		"topic":      topic,
	})

	for ev := range h.service.Observe(context.Background(), sess) {
		if !h.visible(ev) {
			continue
		}
		if err := conn.WriteJSON(ev); err != nil {
			// Breaking out of the range cancels the session at the next turn.
			h.logger.Warn(handlerModule, "Client went away mid-session", map[string]interface{}{
				"session_id": sess.ID(),
				"error":      err,
			})
			return false
		}
	}
	return true
}

// ServeWatch attaches a read-only watcher to a session's full event feed,
// hidden agents included.
func (h *ResearchHandler) ServeWatch(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}
	if _, err := h.service.Get(c.UserContext(), id); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info(handlerModule, "Watcher attached", map[string]interface{}{"session_id": id})
		internalWS.ServeWatcher(h.hub, conn, id)
		h.logger.Info(handlerModule, "Watcher detached", map[string]interface{}{"session_id": id})
	})(c)
}

func (h *ResearchHandler) RegisterRoutes(router fiber.Router) {
	auth := serverutils.JwtMiddleware(h.secret)
	router.Get("/research/ws", auth, h.ServeWs)
	router.Get("/research/sessions/:id/watch", auth, h.ServeWatch)
}

// userIDFromLocals returns the authenticated user, or nil when auth is off.
func userIDFromLocals(c *fiber.Ctx) *uuid.UUID {
	raw, ok := c.Locals("user_id").(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
