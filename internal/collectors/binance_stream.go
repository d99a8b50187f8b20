package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

const (
	streamReconnectWait  = 5 * time.Second
	streamHeartbeat      = 30 * time.Second
	defaultStreamBaseURL = "wss://stream.binance.com:9443/stream"
)

// miniTickerFrame is one combined-stream frame from the exchange
type miniTickerFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Close     string `json:"c"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
	} `json:"data"`
}

// BinanceStreamCollector holds a persistent WebSocket to the exchange
// mini-ticker stream and publishes each frame as a RawEvent.
type BinanceStreamCollector struct {
	BaseCollector
	baseURL string
	symbols []string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBinanceStreamCollector builds the streaming exchange collector
func NewBinanceStreamCollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("binance stream collector requires at least one symbol")
	}
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultStreamBaseURL
	}
	return &BinanceStreamCollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceExchange, pub, 0),
		baseURL:       baseURL,
		symbols:       cfg.Symbols,
	}, nil
}

// Initialize is a no-op; the connection is owned by the stream loop
func (c *BinanceStreamCollector) Initialize(ctx context.Context) error {
	c.Logger().Info().Strs("symbols", c.symbols).Msg("Binance stream collector initialized")
	return nil
}

// Health reports whether the stream loop is running
func (c *BinanceStreamCollector) Health(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return fmt.Errorf("stream not running")
	}
	return nil
}

// Collect starts the stream if it is not already running. Events flow from
// the background loop, so the tick itself accepts no events.
func (c *BinanceStreamCollector) Collect(ctx context.Context, params Params) (int, error) {
	if err := c.StartStream(ctx); err != nil {
		return 0, err
	}
	return 0, nil
}

// StartStream launches the background read loop. Idempotent.
func (c *BinanceStreamCollector) StartStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.streamLoop(streamCtx)
	c.Logger().Info().Msg("Stream started")
	return nil
}

// StopStream stops the background loop and waits for it to exit
func (c *BinanceStreamCollector) StopStream() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
	c.Logger().Info().Msg("Stream stopped")
	return nil
}

// Close stops the stream and releases the HTTP session
func (c *BinanceStreamCollector) Close() error {
	if err := c.StopStream(); err != nil {
		return err
	}
	return c.BaseCollector.Close()
}

func (c *BinanceStreamCollector) streamURL() string {
	streams := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		streams[i] = strings.ToLower(s) + "@miniTicker"
	}
	return c.baseURL + "?streams=" + strings.Join(streams, "/")
}

// streamLoop connects, reads frames and reconnects after 5s on any close or
// protocol error until the context is cancelled.
func (c *BinanceStreamCollector) streamLoop(ctx context.Context) {
	defer close(c.done)

	for {
		if err := c.readUntilFailure(ctx); err != nil {
			c.Logger().Warn().Err(err).Dur("reconnect_in", streamReconnectWait).Msg("Stream dropped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(streamReconnectWait):
		}
	}
}

// readUntilFailure runs a single connection lifetime: dial, read frames,
// ping on 30s of silence, drop when the ping fails.
func (c *BinanceStreamCollector) readUntilFailure(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return &events.ExternalServiceError{Service: c.Name(), Details: err.Error(), Err: err}
	}
	defer conn.Close()

	// Close the connection when the context is cancelled so ReadMessage
	// unblocks.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(streamHeartbeat))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				// Heartbeat: 30s of silence, try a ping before dropping
				if perr := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); perr != nil {
					return fmt.Errorf("heartbeat ping failed: %w", perr)
				}
				conn.SetReadDeadline(time.Now().Add(streamHeartbeat))
				_, frame, err = conn.ReadMessage()
				if err != nil {
					return fmt.Errorf("no frame after heartbeat ping: %w", err)
				}
			} else {
				return err
			}
		}
		c.handleFrame(ctx, frame)
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}
	return false
}

// handleFrame converts a mini-ticker frame to a RawEvent and publishes it
func (c *BinanceStreamCollector) handleFrame(ctx context.Context, frame []byte) {
	var mt miniTickerFrame
	if err := json.Unmarshal(frame, &mt); err != nil {
		c.Logger().Warn().Err(err).Msg("Unparsable stream frame")
		return
	}
	if mt.Data.Symbol == "" {
		return
	}

	lastPrice, _ := strconv.ParseFloat(mt.Data.Close, 64)
	openPrice, _ := strconv.ParseFloat(mt.Data.Open, 64)
	volume, _ := strconv.ParseFloat(mt.Data.Volume, 64)

	content := fmt.Sprintf("%s at %s (stream)", mt.Data.Symbol, mt.Data.Close)
	ev := events.NewRawEvent(events.SourceExchange, fmt.Sprintf("%s-stream-%d", mt.Data.Symbol, mt.Data.EventTime), content)
	eventTime := time.UnixMilli(mt.Data.EventTime).UTC()
	ev.PublishedAt = &eventTime
	ev.Metadata["pair"] = mt.Data.Symbol
	ev.Metadata["last_price"] = lastPrice
	ev.Metadata["open_price"] = openPrice
	ev.Metadata["volume"] = volume
	if base := BaseSymbol(mt.Data.Symbol); base != "" {
		ev.Symbols = []string{base}
	}

	if _, err := c.PublishEvents(ctx, []*events.RawEvent{ev}); err != nil {
		c.Logger().Error().Err(err).Str("pair", mt.Data.Symbol).Msg("Failed to publish stream event")
	}
}
