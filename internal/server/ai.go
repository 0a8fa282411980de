package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/ai"
	"github.com/labstack/echo/v4"
)

// AIAsk answers a question over the settlement archive. A model override
// builds a throwaway agent for the one request.
func (h *Handlers) AIAsk(c echo.Context) error {
	var req AIAskRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return h.err(c, http.StatusBadRequest, "question is required", map[string]any{"question": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 45*time.Second)
	defer cancel()
	start := time.Now()

	agent := h.AI
	if model := strings.TrimSpace(req.Model); model != "" && model != h.AIBaseConfig.Model {
		cfg := h.AIBaseConfig
		cfg.Model = model
		override, err := ai.NewAgent(ctx, cfg)
		if err != nil {
			return h.err(c, http.StatusBadGateway, "failed to create ai agent", map[string]any{"err": err.Error()})
		}
		defer override.Close()
		agent = override
	}

	res, err := agent.Ask(ctx, question)
	switch {
	case errors.Is(err, ai.ErrAnalyticsDisabled):
		return h.err(c, http.StatusBadRequest, "analytics archive is not configured", nil)
	case err != nil:
		h.Logger.WithError(err).Warn("ai ask failed")
		return h.err(c, http.StatusBadGateway, "ai ask failed", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, AIAskResponse{SQL: res.SQL, Answer: res.Answer, TookMs: time.Since(start).Milliseconds()})
}
