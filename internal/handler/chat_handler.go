package handler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"movie-tracker/internal/models"
)

// ChatService is the conversation surface exposed over HTTP.
type ChatService interface {
	Help() models.Reply
	Cancel(ctx context.Context, userID int64) models.Reply
	Add(ctx context.Context, userID int64, rawArgs string) (models.Reply, error)
	List(ctx context.Context, userID int64) (models.Reply, error)
	Recommend(ctx context.Context, userID int64, rawArgs string) (models.Reply, error)
	HandleInput(ctx context.Context, userID int64, text string) (models.Reply, error)
}

// FilmLister reads a user's watched films.
type FilmLister interface {
	ListFilms(ctx context.Context, userID int64) ([]models.WatchedFilm, error)
}

// CommandRequest is the body of a command call.
type CommandRequest struct {
	Args string `json:"args" validate:"max=500"`
}

// MessageRequest is the body of a free-text message.
type MessageRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}

// FilmListResponse is the watched list of one user.
type FilmListResponse struct {
	UserID int64                `json:"user_id"`
	Films  []models.WatchedFilm `json:"films"`
	Total  int                  `json:"total"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChatHandler handles HTTP requests from chat transport adapters.
type ChatHandler struct {
	chat     ChatService
	films    FilmLister
	validate *validator.Validate
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chat ChatService, films FilmLister) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		films:    films,
		validate: validator.New(),
	}
}

// Register mounts the chat routes on r. limit runs before every per-user
// route, where the userId param is already resolved; nil skips it.
func (h *ChatHandler) Register(r fiber.Router, limit fiber.Handler) {
	if limit == nil {
		limit = func(c fiber.Ctx) error { return c.Next() }
	}
	r.Get("/health", h.Health)
	r.Post("/users/:userId/commands/:command", limit, h.Command)
	r.Post("/users/:userId/messages", limit, h.Message)
	r.Get("/users/:userId/films", limit, h.Films)
}

// Health returns service health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *ChatHandler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "movie-tracker",
	})
}

// Command runs one of add, list, recommend, help or cancel.
// @Summary Run a chat command
// @Tags chat
// @Accept json
// @Produce json
// @Param userId path int true "Chat user ID"
// @Param command path string true "Command" Enums(add,list,recommend,help,cancel)
// @Param body body CommandRequest false "Command arguments"
// @Success 200 {object} models.Reply
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{userId}/commands/{command} [post]
func (h *ChatHandler) Command(c fiber.Ctx) error {
	userID, ok := parseUserID(c)
	if !ok {
		return badRequest(c, "invalid user ID")
	}

	var req CommandRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, "args too long")
	}

	ctx := c.Context()
	var (
		reply models.Reply
		err   error
	)
	switch command := c.Params("command"); command {
	case "add":
		reply, err = h.chat.Add(ctx, userID, req.Args)
	case "list":
		reply, err = h.chat.List(ctx, userID)
	case "recommend":
		reply, err = h.chat.Recommend(ctx, userID, req.Args)
	case "help", "start":
		reply = h.chat.Help()
	case "cancel":
		reply = h.chat.Cancel(ctx, userID)
	default:
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "unknown command " + strconv.Quote(command)})
	}
	if err != nil {
		slog.Error("command failed", "user_id", userID, "command", c.Params("command"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
	return c.JSON(reply)
}

// Message continues the user's current conversation with free text or a
// selected item value.
// @Summary Send a message
// @Tags chat
// @Accept json
// @Produce json
// @Param userId path int true "Chat user ID"
// @Param body body MessageRequest true "Message"
// @Success 200 {object} models.Reply
// @Failure 400 {object} ErrorResponse
// @Router /users/{userId}/messages [post]
func (h *ChatHandler) Message(c fiber.Ctx) error {
	userID, ok := parseUserID(c)
	if !ok {
		return badRequest(c, "invalid user ID")
	}

	var req MessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, "text is required and at most 500 characters")
	}

	reply, err := h.chat.HandleInput(c.Context(), userID, req.Text)
	if err != nil {
		slog.Error("message failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
	return c.JSON(reply)
}

// Films returns the user's watched films.
// @Summary List watched films
// @Tags films
// @Produce json
// @Param userId path int true "Chat user ID"
// @Success 200 {object} FilmListResponse
// @Failure 400 {object} ErrorResponse
// @Router /users/{userId}/films [get]
func (h *ChatHandler) Films(c fiber.Ctx) error {
	userID, ok := parseUserID(c)
	if !ok {
		return badRequest(c, "invalid user ID")
	}

	films, err := h.films.ListFilms(c.Context(), userID)
	if err != nil {
		slog.Error("failed to list films", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to retrieve films"})
	}
	return c.JSON(FilmListResponse{UserID: userID, Films: films, Total: len(films)})
}

func parseUserID(c fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}
