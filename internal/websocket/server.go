package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"depthbook/internal/aggregation"
	"depthbook/internal/config"
	"depthbook/internal/depth"
	"depthbook/internal/exchange"
	"depthbook/internal/exchange/coinbase"
	"depthbook/internal/metrics"
	"depthbook/internal/types"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const writeWait = 5 * time.Second

// Engine is what the gateway needs from the reconciliation engine
type Engine interface {
	types.BookReader
	types.FeedController
	Product() string
	Killed() bool
	Ready() bool
}

type Server struct {
	engine   Engine
	cfg      config.Config
	registry *prometheus.Registry
	upgrader websocket.Upgrader
	router   *mux.Router
	logger   zerolog.Logger

	clients    map[*client]bool
	clientsMux sync.RWMutex
}

// client holds the connection and the view settings of one renderer
type client struct {
	conn       *websocket.Conn
	writeMux   sync.Mutex
	settingMux sync.RWMutex
	aggregator *aggregation.Aggregator
	width      int
}

func NewServer(engine Engine, cfg config.Config, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		engine:   engine,
		cfg:      cfg,
		registry: registry,
		clients:  make(map[*client]bool),
		logger:   logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/book", s.handleBook).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if registry != nil {
		r.Handle("/metrics", metrics.Handler(registry)).Methods(http.MethodGet)
	}
	s.router = r

	return s
}

// Handler returns the HTTP routes of the gateway
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down and disconnects all clients
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.startDataPush(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("port", s.cfg.Server.Port).Msg("WebSocket server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	c := &client{
		conn:       conn,
		aggregator: aggregation.New(s.cfg.Book.DefaultTick),
	}

	s.clientsMux.Lock()
	s.clients[c] = true
	metrics.GatewayClients.Set(float64(len(s.clients)))
	s.clientsMux.Unlock()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("New WebSocket client connected")

	defer func() {
		s.removeClient(c)
		s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			s.logger.Debug().Err(err).Msg("Error parsing client message")
			s.reply(c, ErrorMessage{Type: MessageTypeError, Message: "malformed message"})
			continue
		}

		if err := s.handleClientMessage(c, clientMsg); err != nil {
			s.reply(c, ErrorMessage{Type: MessageTypeError, Message: err.Error()})
		}
	}
}

func (s *Server) handleClientMessage(c *client, msg ClientMessage) error {
	switch msg.Type {
	case "set_tick":
		tick := types.TickLevel(msg.Tick)
		if !types.ValidTickLevel(tick) {
			return errInvalidTick
		}
		c.settingMux.Lock()
		c.aggregator.SetTickLevel(tick)
		c.settingMux.Unlock()
		s.logger.Debug().Float64("tick", msg.Tick).Msg("Tick level changed")

	case "set_width":
		if msg.Width < 0 {
			return errInvalidWidth
		}
		c.settingMux.Lock()
		c.width = msg.Width
		c.settingMux.Unlock()

	case "change_product":
		product := coinbase.ProductID(msg.Product)
		if !s.cfg.AllowsProduct(product) {
			return errUnknownProduct
		}
		s.logger.Info().Str("product", product).Msg("Product change request")
		s.engine.ChangeProduct(product)

	case "kill_feed":
		s.logger.Info().Bool("killed", msg.Killed).Msg("Kill feed request")
		s.engine.KillFeed(msg.Killed)

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Unknown message type")
		return errUnknownType
	}
	return nil
}

// handleBook serves one view; width and tick come from the query string
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, errInvalidWidth.Error(), http.StatusBadRequest)
			return
		}
		width = n
	}

	tick := s.cfg.Book.DefaultTick
	if v := r.URL.Query().Get("tick"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !types.ValidTickLevel(types.TickLevel(f)) {
			http.Error(w, errInvalidTick.Error(), http.StatusBadRequest)
			return
		}
		tick = types.TickLevel(f)
	}

	timestamp := time.Now().UnixMilli()
	book := s.engine.Book(s.viewOptions(width, tick))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(BookResponse{
		Orderbook: s.buildOrderbookMessage(book, tick, timestamp),
		Stats:     buildStatsMessage(book, timestamp),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Ready() {
		http.Error(w, "awaiting snapshot", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// startDataPush sends every client its own view on each tick
func (s *Server) startDataPush(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Server.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.push()
		}
	}
}

func (s *Server) push() {
	s.clientsMux.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMux.RUnlock()

	timestamp := time.Now().UnixMilli()
	for _, c := range clients {
		c.settingMux.RLock()
		width, tick := c.width, c.aggregator.GetTickLevel()
		c.settingMux.RUnlock()

		book := s.engine.Book(s.viewOptions(width, tick))

		if err := s.write(c, s.buildOrderbookMessage(book, tick, timestamp)); err != nil {
			s.logger.Debug().Err(err).Msg("Error writing to client")
			s.removeClient(c)
			continue
		}
		if err := s.write(c, buildStatsMessage(book, timestamp)); err != nil {
			s.logger.Debug().Err(err).Msg("Error writing to client")
			s.removeClient(c)
		}
	}
}

func (s *Server) viewOptions(width int, tick types.TickLevel) types.ViewOptions {
	return types.ViewOptions{
		Layout: depth.LayoutFor(width, s.cfg.Book.MobileWidth),
		Tick:   tick,
		Limit:  s.cfg.Book.DisplayLevels,
	}
}

func (s *Server) buildOrderbookMessage(book types.Book, tick types.TickLevel, timestamp int64) OrderbookMessage {
	return OrderbookMessage{
		Type:      MessageTypeOrderbook,
		Exchange:  string(exchange.Coinbase),
		Product:   book.ProductID,
		Session:   book.Session.String(),
		Synced:    book.Synced,
		Killed:    s.engine.Killed(),
		Tick:      float64(tick),
		Bids:      toWire(book.Bids),
		Asks:      toWire(book.Asks),
		Timestamp: timestamp,
	}
}

func buildStatsMessage(book types.Book, timestamp int64) StatsMessage {
	mid := decimal.Zero
	if !book.BestBid.IsZero() && !book.BestAsk.IsZero() {
		mid = book.BestBid.Add(book.BestAsk).Div(decimal.NewFromInt(2))
	}
	return StatsMessage{
		Type:          MessageTypeStats,
		Product:       book.ProductID,
		BestBid:       book.BestBid.String(),
		BestAsk:       book.BestAsk.String(),
		MidPrice:      mid.String(),
		Spread:        book.Spread.String(),
		SpreadPercent: book.SpreadPercent.StringFixed(2),
		BidLevels:     book.BidLevels,
		AskLevels:     book.AskLevels,
		Pending:       book.Pending,
		Timestamp:     timestamp,
	}
}

func toWire(levels []types.PriceLevel) []PriceLevel {
	wire := make([]PriceLevel, 0, len(levels))
	for _, level := range levels {
		wire = append(wire, PriceLevel{
			Price: level.Price.String(),
			Size:  level.Size.String(),
			Total: level.Total.String(),
			Depth: level.Depth,
		})
	}
	return wire
}

func (s *Server) reply(c *client, msg any) {
	if err := s.write(c, msg); err != nil {
		s.logger.Debug().Err(err).Msg("Error writing to client")
	}
}

func (s *Server) write(c *client, msg any) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (s *Server) removeClient(c *client) {
	s.clientsMux.Lock()
	delete(s.clients, c)
	metrics.GatewayClients.Set(float64(len(s.clients)))
	s.clientsMux.Unlock()
	c.conn.Close()
}

func (s *Server) closeClients() {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()
	for c := range s.clients {
		c.conn.Close()
		delete(s.clients, c)
	}
	metrics.GatewayClients.Set(0)
}
