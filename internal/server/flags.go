package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/flags"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const flagTimeout = 3 * time.Second

// ChainPause toggles the pause flag for one chain. Swaps already in
// flight keep settling; only new executions are refused.
func (h *Handlers) ChainPause(c echo.Context) error {
	ch, err := h.chainParam(c, "chain")
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid chain", map[string]any{"chain": err.Error()})
	}
	var req ChainPauseRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()
	f, err := h.Flags.SetChainPaused(ctx, ch.Key, req.Paused)
	if err != nil {
		return h.flagError(c, err)
	}
	h.Logger.WithFields(logrus.Fields{"chain": ch.Key, "paused": req.Paused}).Info("chain pause updated")
	return c.JSON(http.StatusOK, f)
}

func (h *Handlers) FlagsList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()
	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.flagError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsUpsert takes the key from the body; FlagsUpdate from the path.
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	var req FlagUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	return h.writeFlag(c, req.Key, req.Value)
}

func (h *Handlers) FlagsUpdate(c echo.Context) error {
	var req FlagUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	return h.writeFlag(c, c.Param("key"), req.Value)
}

func (h *Handlers) FlagsGet(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.invalidKey(c)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()
	f, err := h.Flags.Get(ctx, key)
	if err != nil {
		return h.flagError(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handlers) FlagsDelete(c echo.Context) error {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return h.invalidKey(c)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()
	if err := h.Flags.Delete(ctx, key); err != nil {
		return h.flagError(c, err)
	}
	h.Logger.WithField("key", key).Info("flag deleted")
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) writeFlag(c echo.Context, key string, value bool) error {
	if err := flags.ValidateKey(key); err != nil {
		return h.invalidKey(c)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()
	f, err := h.Flags.Upsert(ctx, key, value)
	if err != nil {
		return h.flagError(c, err)
	}
	h.Logger.WithFields(logrus.Fields{"key": key, "value": value}).Info("flag updated")
	return c.JSON(http.StatusOK, f)
}

func (h *Handlers) invalidKey(c echo.Context) error {
	return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "must match [a-zA-Z0-9._-]{1,128}"})
}

func (h *Handlers) flagError(c echo.Context, err error) error {
	if errors.Is(err, flags.ErrNotFound) {
		return h.err(c, http.StatusNotFound, "flag not found", nil)
	}
	h.Logger.WithError(err).Error("flag store failed")
	return h.err(c, http.StatusInternalServerError, "flag store unavailable", map[string]any{"err": err.Error()})
}

// requires answers 400 on routes whose optional subsystem is not wired.
func requires(present bool, name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if present {
			return next
		}
		return func(c echo.Context) error {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: name + " is not configured", Code: http.StatusBadRequest})
		}
	}
}
