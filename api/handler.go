// Package api provides the HTTP facade over the prompt log.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/devchat/prompt"
	"github.com/xiaot623/devchat/store"
)

// Handler handles HTTP requests.
type Handler struct {
	chat  prompt.Chat
	store store.Store
}

// NewHandler creates a new handler.
func NewHandler(chat prompt.Chat, st store.Store) *Handler {
	return &Handler{
		chat:  chat,
		store: st,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/log", h.GetLog)
	e.GET("/v1/topics", h.GetTopics)
	e.GET("/v1/prompts/:hash", h.GetPrompt)
	e.POST("/v1/prompts", h.CreatePrompt)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// ErrorResponse is the error envelope for all endpoints.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError holds the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func errorJSON(c echo.Context, status int, errType, message string) error {
	return c.JSON(status, ErrorResponse{
		Error: &APIError{Message: message, Type: errType},
	})
}
