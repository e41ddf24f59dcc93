package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/knowledge"
	"github.com/fyrsmithlabs/botd/internal/prompt"
	"github.com/fyrsmithlabs/botd/internal/settings"
	"github.com/fyrsmithlabs/botd/internal/tenant"
)

// knownSettingKeys restricts the admin config surface to keys the
// resolver actually reads.
var knownSettingKeys = map[string]bool{
	settings.KeyAIProvider:        true,
	settings.KeyOpenAIAPIKey:      true,
	settings.KeyOllamaBaseURL:     true,
	settings.KeyCustomBaseURL:     true,
	settings.KeyCustomModelName:   true,
	settings.KeyHuggingFaceAPIKey: true,
}

// HealthResponse is the response body for GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
	Qdrant any    `json:"qdrant"`
}

func (s *Server) handleHealth(c echo.Context) error {
	status := s.deps.Vectors.Health(c.Request().Context())
	overall := "ok"
	if !status.Healthy {
		overall = "degraded"
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: overall, Qdrant: status})
}

func (s *Server) handleGetConfig(c echo.Context) error {
	snap, err := s.deps.Settings.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "settings store unavailable")
	}

	out := make(map[string]string, len(snap))
	for k, v := range snap {
		if strings.HasSuffix(k, "_API_KEY") && v != "" {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleUpdateConfig(c echo.Context) error {
	var req map[string]string
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no settings provided")
	}

	for key := range req {
		if !knownSettingKeys[key] {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown setting key: %s", key))
		}
	}
	for key, value := range req {
		if err := s.deps.Settings.Set(c.Request().Context(), key, value); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "settings store unavailable")
		}
	}

	s.logger.Info("system configuration updated", zap.Int("keys", len(req)))
	return s.handleGetConfig(c)
}

func (s *Server) handleListModels(c echo.Context) error {
	list, err := s.deps.Models.ListLocal(c.Request().Context())
	if err != nil {
		s.logger.Warn("listing local models failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "local model server unreachable")
	}
	return c.JSON(http.StatusOK, list)
}

// PullModelRequest is the request body for POST /api/admin/models/pull.
type PullModelRequest struct {
	Name string `json:"name"`
}

func (s *Server) handlePullModel(c echo.Context) error {
	var req PullModelRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model name is required")
	}

	if err := s.deps.Models.Pull(c.Request().Context(), req.Name); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "local model server unreachable")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Started pulling model %s. Check server logs for progress.", req.Name),
	})
}

func (s *Server) handleVerifyHFModel(c echo.Context) error {
	var req PullModelRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model name is required")
	}

	if err := s.deps.Models.VerifyHuggingFace(c.Request().Context(), req.Name); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("model %s not found", req.Name))
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Model %s found on Hugging Face.", req.Name),
	})
}

func (s *Server) handleListBots(c echo.Context) error {
	bots, err := s.deps.Bots.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing bots failed")
	}
	return c.JSON(http.StatusOK, bots)
}

func (s *Server) handleCreateBot(c echo.Context) error {
	var bot tenant.Bot
	if err := c.Bind(&bot); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}

	if err := s.deps.Bots.Put(c.Request().Context(), &bot); err != nil {
		if errors.Is(err, tenant.ErrInvalidID) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "storing bot failed")
	}
	return c.JSON(http.StatusCreated, bot)
}

func (s *Server) handleDeleteBot(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := s.deps.Bots.Delete(ctx, id); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "deleting bot failed")
	}
	if err := s.deps.Knowledge.Purge(ctx, id); err != nil {
		s.logger.Warn("purging knowledge base failed", zap.String("bot_id", id), zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// IngestRequest is the request body for POST /api/admin/bots/:id/ingest.
type IngestRequest struct {
	Chunks []knowledge.Chunk `json:"chunks"`
}

func (s *Server) handleIngest(c echo.Context) error {
	ctx := c.Request().Context()

	bot, err := s.deps.Bots.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "loading bot failed")
	}

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.deps.Knowledge.Ingest(ctx, bot, req.Chunks); err != nil {
		if errors.Is(err, knowledge.ErrNoChunks) {
			return echo.NewHTTPError(http.StatusBadRequest, "chunks field is required")
		}
		s.logger.Error("ingestion failed", zap.String("bot_id", bot.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}

	s.metrics.ingestedChunks.Add(float64(len(req.Chunks)))
	return c.JSON(http.StatusOK, map[string]int{"ingested": len(req.Chunks)})
}

// ChatRequest is the request body for POST /api/bots/:id/chat.
type ChatRequest struct {
	Question string           `json:"question"`
	History  []prompt.Message `json:"history"`
}

// handleChat streams the generated answer as server-sent events, one
// JSON token object per event, terminated by a [DONE] event.
func (s *Server) handleChat(c echo.Context) error {
	ctx := c.Request().Context()

	bot, err := s.deps.Bots.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "bot not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "loading bot failed")
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	tokens, err := s.deps.Chat.Stream(ctx, bot, req.Question, req.History)
	if err != nil {
		s.logger.Error("starting generation failed", zap.String("bot_id", bot.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "generation failed to start")
	}
	s.metrics.chatRequests.WithLabelValues(bot.ID).Inc()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for token := range tokens {
		payload, err := json.Marshal(map[string]string{"token": token})
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
			// Client went away; drain is handled by ctx cancellation.
			return nil
		}
		resp.Flush()
		s.metrics.chatTokens.Inc()
	}

	fmt.Fprint(resp, "data: [DONE]\n\n")
	resp.Flush()
	return nil
}
