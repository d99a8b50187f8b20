package scheduler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/marketpulse/internal/collectors"
	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/events"
)

// API is the ingestion service's admin surface: manual collection
// triggers, job status and health.
type API struct {
	scheduler *Scheduler
	registry  *collectors.Registry
	apiKey    string
}

// NewAPI builds the admin API over a running scheduler
func NewAPI(s *Scheduler, registry *collectors.Registry, apiKey string) *API {
	return &API{scheduler: s, registry: registry, apiKey: apiKey}
}

// Router assembles the gin engine
func (a *API) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", a.handleHealth)
	r.GET("/status", a.requireKey, a.handleStatus)
	r.POST("/collect/:source", a.requireKey, a.handleCollect)
	return r
}

// requireKey enforces X-API-Key when an admin key is configured
func (a *API) requireKey(c *gin.Context) {
	if a.apiKey != "" && c.GetHeader("X-API-Key") != a.apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or missing API key"})
		return
	}
	c.Next()
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (a *API) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": a.scheduler.Status()})
}

// handleCollect triggers one collector out of band. Query parameters are
// forwarded to the collector as collect params.
func (a *API) handleCollect(c *gin.Context) {
	source := c.Param("source")

	if !a.scheduler.Has(source) {
		if a.registry.Known(source) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "collector not initialized: " + source})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"detail": "unknown source: " + source})
		return
	}

	params := collectors.Params{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	n, err := a.scheduler.TriggerCollect(c.Request.Context(), source, params)
	if err != nil {
		var open *events.CircuitBreakerOpen
		var rate *events.RateLimitError
		switch {
		case errors.As(err, &open):
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		case errors.As(err, &rate):
			c.Header("Retry-After", strconv.Itoa(rate.RetryAfterSeconds))
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"source":    source,
		"collected": n,
	})
}

// Serve runs the admin API on the configured address in a goroutine and
// returns the server handle for shutdown.
func (a *API) Serve(addr string) *http.Server {
	logger := config.NewLogger("admin_api")
	srv := &http.Server{Addr: addr, Handler: a.Router()}
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting admin API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Admin API error")
		}
	}()
	return srv
}
