package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"depthbook/internal/config"
	"depthbook/internal/orderbook"
	"depthbook/internal/types"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeEngine struct {
	book *orderbook.OrderBook

	mu       sync.Mutex
	product  string
	killed   bool
	products []string
	kills    []bool
}

func (e *fakeEngine) Book(opts types.ViewOptions) types.Book {
	book := e.book.Book(opts)
	book.ProductID = e.Product()
	return book
}

func (e *fakeEngine) ChangeProduct(productID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.product = productID
	e.products = append(e.products, productID)
}

func (e *fakeEngine) KillFeed(killed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killed = killed
	e.kills = append(e.kills, killed)
}

func (e *fakeEngine) Product() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product
}

func (e *fakeEngine) Killed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killed
}

func (e *fakeEngine) Ready() bool { return e.book.IsSynced() }

func lvl(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func newTestServer(t *testing.T) (*Server, *fakeEngine, *httptest.Server) {
	t.Helper()
	engine := &fakeEngine{
		book:    orderbook.New("BTC-USD", 25, zerolog.Nop()),
		product: "BTC-USD",
	}
	s := NewServer(engine, config.Default(), prometheus.NewRegistry(), zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, engine, srv
}

func seed(engine *fakeEngine) {
	engine.book.ApplySnapshot(
		[]types.PriceLevel{lvl("100", "1"), lvl("99", "2"), lvl("98", "3")},
		[]types.PriceLevel{lvl("101", "1"), lvl("102", "1")},
	)
}

func getBook(t *testing.T, url string) BookResponse {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var body BookResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func prices(levels []PriceLevel) []string {
	out := make([]string, len(levels))
	for i, level := range levels {
		out[i] = level.Price
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	_, engine, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected readyz 503 before a snapshot, got %d", resp.StatusCode)
	}

	seed(engine)
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected readyz 200 after a snapshot, got %d", resp.StatusCode)
	}
}

func TestMetricsRoute(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestBookLayouts(t *testing.T) {
	_, engine, srv := newTestServer(t)
	seed(engine)

	tests := []struct {
		name     string
		query    string
		wantBids []string
		wantAsks []string
	}{
		{"wide", "?width=1200", []string{"100", "99", "98"}, []string{"101", "102"}},
		{"no width", "", []string{"100", "99", "98"}, []string{"101", "102"}},
		{"narrow", "?width=640", []string{"100", "99", "98"}, []string{"102", "101"}},
		{"grouped", "?tick=10", []string{"100", "90"}, []string{"110"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := getBook(t, srv.URL+"/book"+tt.query)
			if got := prices(body.Orderbook.Bids); strings.Join(got, ",") != strings.Join(tt.wantBids, ",") {
				t.Errorf("Expected bids %v, got %v", tt.wantBids, got)
			}
			if got := prices(body.Orderbook.Asks); strings.Join(got, ",") != strings.Join(tt.wantAsks, ",") {
				t.Errorf("Expected asks %v, got %v", tt.wantAsks, got)
			}
		})
	}
}

func TestBookTotalsAndStats(t *testing.T) {
	_, engine, srv := newTestServer(t)
	seed(engine)

	body := getBook(t, srv.URL+"/book?width=640")

	// narrow layout lists asks descending but totals still grow from the best ask
	asks := body.Orderbook.Asks
	if asks[0].Total != "2" || asks[0].Depth != 100 || asks[1].Total != "1" || asks[1].Depth != 50 {
		t.Errorf("Unexpected ask totals %+v", asks)
	}
	bids := body.Orderbook.Bids
	if bids[0].Total != "1" || bids[0].Depth != 17 || bids[2].Total != "6" || bids[2].Depth != 100 {
		t.Errorf("Unexpected bid totals %+v", bids)
	}

	stats := body.Stats
	if stats.BestBid != "100" || stats.BestAsk != "101" || stats.Spread != "1" || stats.SpreadPercent != "1.00" {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.Product != "BTC-USD" || body.Orderbook.Product != "BTC-USD" || !body.Orderbook.Synced {
		t.Errorf("Unexpected product info %+v", body.Orderbook)
	}
}

func TestBookRejectsBadQuery(t *testing.T) {
	_, _, srv := newTestServer(t)

	for _, query := range []string{"?tick=7", "?tick=abc", "?width=-1", "?width=wide"} {
		resp, err := http.Get(srv.URL + "/book" + query)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", query, resp.StatusCode)
		}
	}
}

func dialClient(t *testing.T, s *Server, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.clientsMux.RLock()
		n := len(s.clients)
		s.clientsMux.RUnlock()
		if n > 0 {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for client registration")
	return nil
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestPushPerClientView(t *testing.T) {
	s, engine, srv := newTestServer(t)
	seed(engine)
	conn := dialClient(t, s, srv)

	if err := conn.WriteJSON(ClientMessage{Type: "set_width", Width: 500}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(ClientMessage{Type: "set_tick", Tick: 10}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// the settings are applied in order by the read loop; poll until both are visible
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.push()

		var book OrderbookMessage
		readJSON(t, conn, &book)
		var stats StatsMessage
		readJSON(t, conn, &stats)

		if book.Type != MessageTypeOrderbook || stats.Type != MessageTypeStats {
			t.Fatalf("Unexpected message types %s, %s", book.Type, stats.Type)
		}
		if book.Tick == 10 && len(book.Asks) == 1 {
			if book.Asks[0].Price != "110" || len(book.Bids) != 2 || book.Bids[1].Price != "90" || book.Bids[1].Size != "5" {
				t.Errorf("Unexpected grouped book %+v", book)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expected client settings to take effect")
}

func TestClientControlMessages(t *testing.T) {
	s, engine, srv := newTestServer(t)
	conn := dialClient(t, s, srv)

	if err := conn.WriteJSON(ClientMessage{Type: "change_product", Product: "DOGE-USD"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply ErrorMessage
	readJSON(t, conn, &reply)
	if reply.Type != MessageTypeError || reply.Message != errUnknownProduct.Error() {
		t.Errorf("Expected unknown product error, got %+v", reply)
	}

	if err := conn.WriteJSON(ClientMessage{Type: "set_tick", Tick: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readJSON(t, conn, &reply)
	if reply.Message != errInvalidTick.Error() {
		t.Errorf("Expected invalid tick error, got %+v", reply)
	}

	if err := conn.WriteJSON(ClientMessage{Type: "change_product", Product: "ethusdt"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(ClientMessage{Type: "kill_feed", Killed: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(ClientMessage{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readJSON(t, conn, &reply)
	if reply.Message != errUnknownType.Error() {
		t.Errorf("Expected unknown type error, got %+v", reply)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.products) != 1 || engine.products[0] != "ETH-USD" {
		t.Errorf("Expected one change to ETH-USD, got %v", engine.products)
	}
	if len(engine.kills) != 1 || !engine.kills[0] {
		t.Errorf("Expected one kill, got %v", engine.kills)
	}
}
