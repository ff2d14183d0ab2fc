package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/devchat/assistant"
	"github.com/xiaot623/devchat/store"
)

// GetLog returns shortlogs of recent prompts, newest first.
// GET /v1/log
func (h *Handler) GetLog(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 20
	}

	shortlogs, err := h.store.SelectRecent(ctx, limit)
	if err != nil {
		log.Printf("ERROR: failed to select recent prompts: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "internal_error", "failed to read prompt log")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"log": shortlogs,
	})
}

// GetTopics returns conversation topics, most recently active first.
// GET /v1/topics
func (h *Handler) GetTopics(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 20
	}

	topics, err := h.store.ListTopics(ctx, limit)
	if err != nil {
		log.Printf("ERROR: failed to list topics: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "internal_error", "failed to read topics")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"topics": topics,
	})
}

// GetPrompt returns the shortlog of one prompt.
// GET /v1/prompts/:hash
func (h *Handler) GetPrompt(c echo.Context) error {
	ctx := c.Request().Context()
	hash := c.Param("hash")

	p, err := h.store.GetPrompt(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "not_found_error", "prompt "+hash+" not found")
		}
		log.Printf("ERROR: failed to get prompt %s: %v", hash, err)
		return errorJSON(c, http.StatusInternalServerError, "internal_error", "failed to load prompt")
	}

	shortlog, err := p.Shortlog()
	if err != nil {
		log.Printf("ERROR: failed to summarize prompt %s: %v", hash, err)
		return errorJSON(c, http.StatusInternalServerError, "internal_error", "failed to summarize prompt")
	}

	return c.JSON(http.StatusOK, shortlog)
}

// CreatePromptRequest is the request body of CreatePrompt.
type CreatePromptRequest struct {
	Request    string   `json:"request"`
	Instruct   []string `json:"instruct,omitempty"`
	Context    []string `json:"context,omitempty"`
	Parent     []string `json:"parent,omitempty"`
	References []string `json:"references,omitempty"`
}

// CreatePromptResponse is the response body of CreatePrompt.
type CreatePromptResponse struct {
	Hash      string   `json:"hash"`
	Responses []string `json:"responses"`
	LatencyMs int64    `json:"latency_ms"`
	RequestID string   `json:"request_id"`
}

// CreatePrompt runs one request/response round in blocking mode.
// POST /v1/prompts
func (h *Handler) CreatePrompt(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreatePromptRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "invalid request body")
	}
	if req.Request == "" {
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", "request is required")
	}

	requestID := "prompt_" + uuid.New().String()[:8]
	startTime := time.Now()

	a := assistant.New(h.chat, h.store)
	if err := a.MakePrompt(ctx, req.Request, req.Instruct, req.Context, req.Parent, req.References); err != nil {
		log.Printf("ERROR: [%s] failed to make prompt: %v", requestID, err)
		return errorJSON(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	}

	var responses []string
	err := a.IterateResponses(ctx, func(fragment string) error {
		responses = append(responses, fragment)
		return nil
	})
	if err != nil {
		log.Printf("ERROR: [%s] backend exchange failed: %v", requestID, err)
		return errorJSON(c, http.StatusBadGateway, "api_error", err.Error())
	}

	return c.JSON(http.StatusOK, CreatePromptResponse{
		Hash:      a.Prompt().Hash(),
		Responses: responses,
		LatencyMs: time.Since(startTime).Milliseconds(),
		RequestID: requestID,
	})
}
