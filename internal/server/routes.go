package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = NotFoundJSON()

	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				p := c.Path()
				return p == "/v1/health" || p == "/metrics"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1, nil
			},
			ErrorHandler: func(err error, c echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing api key").SetInternal(err)
			},
		}))
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/chains", h.ListChains)
	v1.POST("/chains/:chain/pause", h.ChainPause, requires(h.Flags != nil, "flags"))
	v1.GET("/tokens/:chain", h.ListTokens)
	v1.GET("/risk", h.RiskStatus)

	// Every quote is an upstream call; keep clients from hammering the aggregator.
	v1.GET("/quote", h.Quote, middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(2),
		Burst:     5,
		ExpiresIn: 2 * time.Minute,
	})))

	swaps := v1.Group("/swaps")
	swaps.POST("", h.ExecuteSwap)
	swaps.GET("", h.ListSwaps)
	swaps.POST("/record", h.CreateRecord)
	swaps.POST("/reconcile", h.Reconcile)
	swaps.GET("/:txid", h.GetSwap)
	swaps.POST("/:txid/terminal", h.SetTerminal)
	swaps.GET("/:txid/track", h.TrackingState)
	swaps.POST("/:txid/track", h.StartTracking)
	swaps.DELETE("/:txid/track", h.StopTracking)
	swaps.GET("/:txid/explain", h.ExplainSwap)

	v1.POST("/assets", h.AddAsset)
	v1.GET("/assets/:chain", h.ListAssets)

	aigroup := v1.Group("/ai", requires(h.AI != nil, "ai"))
	aigroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(0.2), // 1 request every 5 seconds
		Burst:     2,
		ExpiresIn: 2 * time.Minute,
	})))
	aigroup.POST("/ask", h.AIAsk)

	flagGroup := v1.Group("/flags", requires(h.Flags != nil, "flags"))
	flagGroup.GET("", h.FlagsList)
	flagGroup.POST("", h.FlagsUpsert)
	flagGroup.GET("/:key", h.FlagsGet)
	flagGroup.PUT("/:key", h.FlagsUpdate)
	flagGroup.DELETE("/:key", h.FlagsDelete)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
