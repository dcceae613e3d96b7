package feed

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// mockKlineServer serves scripted kline events over a real websocket, so
// the feed is exercised against actual wire framing rather than an
// in-process stub.
type mockKlineServer struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	// script maps "<symbol>@kline_<interval>" to the events streamed on
	// that subscription, in order.
	script map[string][]map[string]any
}

func newMockKlineServer(script map[string][]map[string]any) (*mockKlineServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &mockKlineServer{
		listener: listener,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		script: script,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleStream)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		//nolint:errcheck
		s.server.Serve(listener)
	}()

	return s, nil
}

func (s *mockKlineServer) URL() string {
	return "ws://" + s.listener.Addr().String()
}

func (s *mockKlineServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	//nolint:errcheck
	s.server.Shutdown(ctx)
}

func (s *mockKlineServer) handleStream(w http.ResponseWriter, r *http.Request) {
	stream := strings.TrimPrefix(r.URL.Path, "/ws/")
	events, ok := s.script[stream]
	if !ok {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, event := range events {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}

	// Keep the connection open until the client hangs up.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wireKline builds the Binance kline event payload the way the exchange
// frames it on the wire.
func wireKline(symbol, interval string, startTime int64, open, high, low, close string, final bool) map[string]any {
	return map[string]any{
		"e": "kline",
		"E": startTime,
		"s": symbol,
		"k": map[string]any{
			"t": startTime,
			"T": startTime + 59_999,
			"s": symbol,
			"i": interval,
			"o": open,
			"h": high,
			"l": low,
			"c": close,
			"v": "12.5",
			"x": final,
		},
	}
}

// dialingWebSocket implements BinanceWebSocketService against an arbitrary
// websocket endpoint.
type dialingWebSocket struct {
	baseURL string
}

func (d *dialingWebSocket) WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	endpoint := fmt.Sprintf("%s/ws/%s@kline_%s", d.baseURL, strings.ToLower(symbol), interval)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, nil, err
	}

	doneC := make(chan struct{})
	stopC := make(chan struct{})

	go func() {
		<-stopC
		conn.Close()
	}()

	go func() {
		defer close(doneC)
		for {
			event := new(BinanceWsKlineEvent)
			if err := conn.ReadJSON(event); err != nil {
				select {
				case <-stopC:
				default:
					errHandler(err)
				}
				return
			}
			handler(event)
		}
	}()

	return doneC, stopC, nil
}

type MockServerTestSuite struct {
	suite.Suite
}

func TestMockServerSuite(t *testing.T) {
	suite.Run(t, new(MockServerTestSuite))
}

func (s *MockServerTestSuite) TestStreamOverRealWebSocket() {
	server, err := newMockKlineServer(map[string][]map[string]any{
		"btcusdt@kline_1m": {
			wireKline("BTCUSDT", "1m", 1700000000000, "100", "101", "99", "100.5", true),
			wireKline("BTCUSDT", "1m", 1700000060000, "100.5", "102", "100", "101.5", false),
			wireKline("BTCUSDT", "1m", 1700000060000, "100.5", "103", "100", "102", true),
		},
	})
	s.Require().NoError(err)
	defer server.Close()

	feed := NewBinanceFeedWithWebSocket(&dialingWebSocket{baseURL: server.URL()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received []types.MarketData
	for data, err := range feed.Stream(ctx, []string{"BTCUSDT"}, types.Interval1m) {
		s.Require().NoError(err)
		received = append(received, data)
		if len(received) == 2 {
			break
		}
	}

	s.Require().Len(received, 2)
	s.Equal("BTCUSDT", received[0].Symbol)
	s.Equal(types.Interval1m, received[0].Interval)
	s.Equal(time.UnixMilli(1700000000000), received[0].Time)
	s.Equal(100.5, received[0].Close)
	// The forming candle between the two finalized ones is never yielded.
	s.Equal(102.0, received[1].Close)
	s.Equal(12.5, received[1].Volume)
}

func (s *MockServerTestSuite) TestSubscribeUnknownStreamFails() {
	server, err := newMockKlineServer(map[string][]map[string]any{})
	s.Require().NoError(err)
	defer server.Close()

	feed := NewBinanceFeedWithWebSocket(&dialingWebSocket{baseURL: server.URL()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, err := range feed.Stream(ctx, []string{"ETHUSDT"}, types.Interval1m) {
		s.Error(err)
		break
	}
}
