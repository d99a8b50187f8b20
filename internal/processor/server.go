package processor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/marketpulse/internal/bus"
	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/events"
	"github.com/ajitpratap0/marketpulse/internal/metrics"
)

// Server is the processor's push-subscription HTTP surface
type Server struct {
	processor *Processor
}

// NewServer builds the push server over a started processor
func NewServer(p *Processor) *Server {
	return &Server{processor: p}
}

// Router assembles the gin engine
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.POST("/pubsub-push/processed-sentiment", s.handlePush)
	return r
}

// handlePush decodes one push delivery and processes it synchronously.
// 400 poisons the delivery, 429 asks the broker to back off, 500 triggers
// redelivery.
func (s *Server) handlePush(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.PushMessages.WithLabelValues(metrics.ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unreadable body"})
		return
	}

	data, _, err := bus.DecodeEnvelope(body)
	if err != nil {
		metrics.PushMessages.WithLabelValues(metrics.ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	var ps events.ProcessedSentiment
	if err := json.Unmarshal(data, &ps); err != nil {
		metrics.PushMessages.WithLabelValues(metrics.ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "undecodable processed sentiment: " + err.Error()})
		return
	}

	if err := s.processor.Submit(c.Request.Context(), &ps); err != nil {
		var rate *events.RateLimitError
		switch {
		case errors.Is(err, ErrQueueFull):
			metrics.PushMessages.WithLabelValues(metrics.ResultDropped).Inc()
			c.Header("Retry-After", strconv.Itoa(s.processor.retryAfterSec))
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "work queue saturated"})
		case errors.As(err, &rate):
			metrics.PushMessages.WithLabelValues(metrics.ResultDropped).Inc()
			c.Header("Retry-After", strconv.Itoa(rate.RetryAfterSeconds))
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Serve runs the push server on addr in a goroutine and returns the server
// handle for shutdown.
func (s *Server) Serve(addr string) *http.Server {
	logger := config.NewLogger("push_server")
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting push server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Push server error")
		}
	}()
	return srv
}
