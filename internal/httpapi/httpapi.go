// Package httpapi implements §6's external interfaces on top of echo: the
// HTTP control surface (list/start/restart/stop) and the Telegram webhook
// ingress that feeds updates into the running bots' Routers.
package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/EXG1O/telegram-bots-hub/internal/hub"
	"github.com/EXG1O/telegram-bots-hub/internal/lifecycle"
	"github.com/EXG1O/telegram-bots-hub/internal/metrics"
	"github.com/EXG1O/telegram-bots-hub/internal/router"
)

// errorBody is the documented {code, detail} JSON error shape.
type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// startRequest is the body of POST /bots/{service_id}/start/.
type startRequest struct {
	BotToken string `json:"bot_token"`
}

// Server wires the control surface and webhook ingress onto an echo
// instance. It holds no state of its own beyond the collaborators it was
// built with.
type Server struct {
	hub           *hub.Hub
	lifecycle     *lifecycle.Manager
	selfToken     string
	webhookSecret string
	metrics       *metrics.Registry
}

// New builds a Server. selfToken authenticates the control surface;
// webhookSecret is the process-wide generated secret Telegram echoes back
// on every webhook call.
func New(h *hub.Hub, lm *lifecycle.Manager, selfToken, webhookSecret string, reg *metrics.Registry) *Server {
	return &Server{hub: h, lifecycle: lm, selfToken: selfToken, webhookSecret: webhookSecret, metrics: reg}
}

// Register mounts every route onto e.
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	control := e.Group("/bots", s.requireSelfToken)
	control.GET("/", s.listBots)
	control.POST("/:service_id/start/", s.startBot)
	control.POST("/:service_id/restart/", s.restartBot)
	control.POST("/:service_id/stop/", s.stopBot)

	e.POST("/telegram/bots/:service_id/webhook/", s.webhook, s.requireWebhookSecret)
}

func (s *Server) requireSelfToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !constantTimeEqual(c.Request().Header.Get("X-API-KEY"), s.selfToken) {
			return writeError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid X-API-KEY")
		}
		return next(c)
	}
}

func (s *Server) requireWebhookSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !constantTimeEqual(c.Request().Header.Get("X-Telegram-Bot-Api-Secret-Token"), s.webhookSecret) {
			return writeError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid webhook secret token")
		}
		return next(c)
	}
}

func constantTimeEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) listBots(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.List())
}

func (s *Server) startBot(c echo.Context) error {
	serviceID, err := serviceIDParam(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_service_id", err.Error())
	}

	var req startRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	if err := s.lifecycle.Start(c.Request().Context(), serviceID, req.BotToken); err != nil {
		return writeLifecycleError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) restartBot(c echo.Context) error {
	serviceID, err := serviceIDParam(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_service_id", err.Error())
	}

	if err := s.lifecycle.Restart(c.Request().Context(), serviceID); err != nil {
		return writeLifecycleError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) stopBot(c echo.Context) error {
	serviceID, err := serviceIDParam(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_service_id", err.Error())
	}

	if err := s.lifecycle.Stop(serviceID); err != nil {
		return writeLifecycleError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// webhook decodes the Telegram update, converts it to a router.Update, and
// dispatches it to the owning bot's Route closure. Traversal runs
// synchronously here (the walker itself fans out internally). An unknown
// service id gets a 400 not_found_bot error body; an update that is
// neither a message nor a callback query is acknowledged with 200 and not
// routed.
func (s *Server) webhook(c echo.Context) error {
	serviceID, err := serviceIDParam(c)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_service_id", err.Error())
	}

	entry, ok := s.hub.Get(serviceID)
	if !ok {
		return writeError(c, http.StatusBadRequest, "not_found_bot", "the bot was not found, because it is not started here")
	}

	var tgUpdate tgbotapi.Update
	if err := c.Bind(&tgUpdate); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}

	if s.metrics != nil {
		s.metrics.WebhookReceived(serviceID)
	}

	upd, ok := convertUpdate(tgUpdate)
	if ok {
		entry.Route(c.Request().Context(), upd)
	}
	return c.NoContent(http.StatusOK)
}

func serviceIDParam(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("service_id"), 10, 64)
}

func writeError(c echo.Context, status int, code, detail string) error {
	return c.JSON(status, errorBody{Code: code, Detail: detail})
}

func writeLifecycleError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrBotAlreadyEnabled):
		return writeError(c, http.StatusBadRequest, "bot_already_enabled", "the bot is already enabled and working")
	case errors.Is(err, lifecycle.ErrNotFoundBot):
		return writeError(c, http.StatusBadRequest, "not_found_bot", "the bot was not found, because it is not started here")
	case errors.Is(err, lifecycle.ErrInvalidBotToken):
		return writeError(c, http.StatusBadRequest, "invalid_bot_token", "the API token is invalid for the bot")
	default:
		return writeError(c, http.StatusBadRequest, "start_failed", err.Error())
	}
}

// convertUpdate maps a Telegram update onto the platform-neutral
// router.Update, covering both plain messages and callback queries.
func convertUpdate(u tgbotapi.Update) (router.Update, bool) {
	switch {
	case u.Message != nil:
		return messageUpdate(u.Message), true
	case u.CallbackQuery != nil:
		return callbackUpdate(u.CallbackQuery), true
	default:
		return router.Update{}, false
	}
}

func messageUpdate(m *tgbotapi.Message) router.Update {
	upd := router.Update{
		Text:           m.Text,
		MessageDateISO: time.Unix(int64(m.Date), 0).UTC().Format(time.RFC3339),
	}
	if m.Chat != nil {
		chatID := m.Chat.ID
		upd.ChatID = &chatID
	}
	messageID := int64(m.MessageID)
	upd.MessageID = &messageID
	if m.From != nil {
		userID := m.From.ID
		upd.UserID = &userID
		upd.UserIsBot = m.From.IsBot
		upd.Username = m.From.UserName
		upd.FirstName = m.From.FirstName
		upd.LastName = m.From.LastName
		upd.FullName = fullName(m.From.FirstName, m.From.LastName)
		upd.LanguageCode = m.From.LanguageCode
	}
	return upd
}

func callbackUpdate(q *tgbotapi.CallbackQuery) router.Update {
	upd := router.Update{}
	if q.Message != nil {
		if q.Message.Chat != nil {
			chatID := q.Message.Chat.ID
			upd.ChatID = &chatID
		}
		messageID := int64(q.Message.MessageID)
		upd.MessageID = &messageID
		upd.Text = q.Message.Text
	}
	if q.From != nil {
		userID := q.From.ID
		upd.UserID = &userID
		upd.UserIsBot = q.From.IsBot
		upd.Username = q.From.UserName
		upd.FirstName = q.From.FirstName
		upd.LastName = q.From.LastName
		upd.FullName = fullName(q.From.FirstName, q.From.LastName)
		upd.LanguageCode = q.From.LanguageCode
	}
	if id, err := strconv.ParseInt(q.Data, 10, 64); err == nil {
		upd.CallbackData = &id
	}
	return upd
}

func fullName(first, last string) string {
	if last == "" {
		return first
	}
	return first + " " + last
}
