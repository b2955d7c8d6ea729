// Package realtime pushes live quotes to WebSocket clients.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	MaxWebSocketClients   = 100
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongTimeout  = 60 * time.Second
	WebSocketPingInterval = 30 * time.Second
	DefaultStreamInterval = 2 * time.Second
)

// QuoteSource is the shared quote fetcher; streams go through its cache
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// QuoteFrame is one pushed message
type QuoteFrame struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Volume int64   `json:"volume"`
	TS     int64   `json:"ts"`
	Error  string  `json:"error,omitempty"`
}

type streamClient struct {
	conn   *websocket.Conn
	symbol string
	cancel context.CancelFunc
}

// QuoteStreamer runs one push loop per connection
type QuoteStreamer struct {
	source     QuoteSource
	interval   time.Duration
	maxClients int
	logger     *applog.Logger
	upgrader   websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*streamClient]struct{}
	pending  int
	shutdown chan struct{}
	once     sync.Once
	now      func() time.Time
}

// NewQuoteStreamer creates a streamer that pushes every interval
func NewQuoteStreamer(source QuoteSource, interval time.Duration, logger *applog.Logger) *QuoteStreamer {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &QuoteStreamer{
		source:     source,
		interval:   interval,
		maxClients: MaxWebSocketClients,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:  make(map[*streamClient]struct{}),
		shutdown: make(chan struct{}),
		now:      time.Now,
	}
}

// HandleWebSocket upgrades GET /ws/quote?symbol=... and starts the push loop
func (s *QuoteStreamer) HandleWebSocket(c *gin.Context) {
	if !s.reserve() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server at capacity"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.release()
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sym := models.NormalizeSymbol(c.Query("symbol"))
	if sym == "" {
		s.release()
		conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
		conn.WriteJSON(gin.H{"error": "missing symbol"})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing symbol"))
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &streamClient{conn: conn, symbol: sym, cancel: cancel}
	s.register(client)

	go s.readPump(client)
	go s.pushLoop(ctx, client)
}

// reserve claims a stream slot before the upgrade so concurrent handshakes
// cannot exceed maxClients.
func (s *QuoteStreamer) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients)+s.pending >= s.maxClients {
		return false
	}
	s.pending++
	return true
}

func (s *QuoteStreamer) release() {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
}

// register turns a reserved slot into an open stream
func (s *QuoteStreamer) register(client *streamClient) {
	s.mu.Lock()
	s.pending--
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug().Str("symbol", client.symbol).Int("clients", n).Msg("stream opened")
}

func (s *QuoteStreamer) unregister(client *streamClient) {
	s.mu.Lock()
	_, ok := s.clients[client]
	delete(s.clients, client)
	n := len(s.clients)
	s.mu.Unlock()

	client.cancel()
	client.conn.Close()
	if ok {
		s.logger.Debug().Str("symbol", client.symbol).Int("clients", n).Msg("stream closed")
	}
}

// pushLoop is the only writer on the connection
func (s *QuoteStreamer) pushLoop(ctx context.Context, client *streamClient) {
	ticker := time.NewTicker(s.interval)
	ping := time.NewTicker(WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		ping.Stop()
		s.unregister(client)
	}()

	for {
		if err := s.push(ctx, client); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-ping.C:
			client.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// wait for the next tick so the push cadence stays fixed
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-s.shutdown:
				return
			}
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		}
	}
}

func (s *QuoteStreamer) push(ctx context.Context, client *streamClient) error {
	frame := QuoteFrame{Symbol: client.symbol, TS: s.now().Unix()}
	quote, err := s.source.Quote(ctx, client.symbol)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame.Error = apperror.BodyOf(err).Error
	} else {
		frame.Last = quote.Price
		frame.Volume = quote.Volume
	}

	client.conn.SetWriteDeadline(time.Now().Add(WebSocketWriteTimeout))
	return client.conn.WriteJSON(frame)
}

// readPump detects peer closure and cancels the push loop
func (s *QuoteStreamer) readPump(client *streamClient) {
	defer client.cancel()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(WebSocketPongTimeout))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// ClientCount returns the number of open streams
func (s *QuoteStreamer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown stops every push loop and closes all connections
func (s *QuoteStreamer) Shutdown() {
	s.once.Do(func() {
		close(s.shutdown)

		s.mu.Lock()
		clients := make([]*streamClient, 0, len(s.clients))
		for c := range s.clients {
			clients = append(clients, c)
		}
		s.mu.Unlock()

		for _, c := range clients {
			c.cancel()
			c.conn.Close()
		}
		s.logger.Info().Int("clients", len(clients)).Msg("quote streamer shut down")
	})
}
