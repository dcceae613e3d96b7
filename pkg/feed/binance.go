package feed

import (
	"context"
	"iter"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// Type aliases over the Binance SDK so feed consumers and tests do not
// import the SDK directly.
type (
	BinanceWsKlineEvent = binance.WsKlineEvent
	BinanceWsKline      = binance.WsKline
	WsKlineHandler      = binance.WsKlineHandler
	WsErrorHandler      = binance.ErrHandler
)

// BinanceWebSocketService abstracts the Binance kline websocket endpoint so
// the stream logic can be tested without a network connection.
type BinanceWebSocketService interface {
	WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (doneC chan struct{}, stopC chan struct{}, err error)
}

// binanceWebSocket is the production implementation backed by the SDK.
type binanceWebSocket struct{}

func (binanceWebSocket) WsKlineServe(symbol string, interval string, handler WsKlineHandler, errHandler WsErrorHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, handler, errHandler)
}

// BinanceFeed streams finalized klines from Binance.
type BinanceFeed struct {
	ws BinanceWebSocketService
}

// NewBinanceFeed creates a feed against the live Binance websocket API.
func NewBinanceFeed() *BinanceFeed {
	return NewBinanceFeedWithWebSocket(binanceWebSocket{})
}

// NewBinanceFeedWithWebSocket creates a feed with a custom websocket
// service, used in tests.
func NewBinanceFeedWithWebSocket(ws BinanceWebSocketService) *BinanceFeed {
	return &BinanceFeed{ws: ws}
}

// Name implements Feed.
func (f *BinanceFeed) Name() string { return "binance" }

// Stream implements Feed. One websocket subscription is opened per symbol
// and only finalized candles are yielded; a candle still forming never
// reaches the strategies.
func (f *BinanceFeed) Stream(ctx context.Context, symbols []string, interval types.Interval) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		if len(symbols) == 0 {
			yield(types.MarketData{}, errors.New(errors.ErrCodeInvalidParameter, "no symbols provided"))
			return
		}
		if !interval.IsValid() {
			yield(types.MarketData{}, errors.Newf(errors.ErrCodeInvalidInterval, "invalid interval %q", interval))
			return
		}

		events := make(chan types.MarketData, 100)
		errs := make(chan error, 10)

		handler := func(event *BinanceWsKlineEvent) {
			if event == nil || !event.Kline.IsFinal {
				return
			}
			data, err := convertKlineEventToMarketData(event, interval)
			if err != nil {
				select {
				case errs <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case events <- data:
			case <-ctx.Done():
			}
		}
		errHandler := func(err error) {
			select {
			case errs <- errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "websocket error", err):
			case <-ctx.Done():
			}
		}

		stopChans := make([]chan struct{}, 0, len(symbols))
		defer func() {
			for _, stopC := range stopChans {
				close(stopC)
			}
		}()

		for _, symbol := range symbols {
			_, stopC, err := f.ws.WsKlineServe(symbol, string(interval), handler, errHandler)
			if err != nil {
				yield(types.MarketData{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to subscribe to %s klines", symbol))
				return
			}
			stopChans = append(stopChans, stopC)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case data := <-events:
				if !yield(data, nil) {
					return
				}
			case err := <-errs:
				if !yield(types.MarketData{}, err) {
					return
				}
			}
		}
	}
}

// convertKlineEventToMarketData maps a finalized Binance kline onto a
// candle. The kline's open time is the bar timestamp.
func convertKlineEventToMarketData(event *BinanceWsKlineEvent, interval types.Interval) (types.MarketData, error) {
	open, err := strconv.ParseFloat(event.Kline.Open, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse open price", err)
	}
	high, err := strconv.ParseFloat(event.Kline.High, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse high price", err)
	}
	low, err := strconv.ParseFloat(event.Kline.Low, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse low price", err)
	}
	closePrice, err := strconv.ParseFloat(event.Kline.Close, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse close price", err)
	}
	volume, err := strconv.ParseFloat(event.Kline.Volume, 64)
	if err != nil {
		return types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to parse volume", err)
	}

	return types.MarketData{
		Symbol:   event.Symbol,
		Interval: interval,
		Time:     time.UnixMilli(event.Kline.StartTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}
