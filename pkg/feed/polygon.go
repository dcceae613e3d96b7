package feed

import (
	"context"
	"iter"
	"time"

	polygonws "github.com/polygon-io/client-go/websocket"
	"github.com/polygon-io/client-go/websocket/models"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// PolygonWebSocketService abstracts the Polygon websocket client so the
// stream logic can be tested without a network connection.
type PolygonWebSocketService interface {
	Connect() error
	Subscribe(topic polygonws.Topic, tickers ...string) error
	Unsubscribe(topic polygonws.Topic, tickers ...string) error
	Output() <-chan any
	Error() <-chan error
	Close()
}

// PolygonFeed streams equity aggregates from Polygon.
type PolygonFeed struct {
	apiKey string
	ws     PolygonWebSocketService
}

// NewPolygonFeed creates a feed against the live Polygon stocks websocket.
func NewPolygonFeed(apiKey string) (*PolygonFeed, error) {
	client, err := polygonws.New(polygonws.Config{
		APIKey: apiKey,
		Feed:   polygonws.RealTime,
		Market: polygonws.Stocks,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to create polygon websocket client", err)
	}
	return NewPolygonFeedWithWebSocket(apiKey, client), nil
}

// NewPolygonFeedWithWebSocket creates a feed with a custom websocket
// service, used in tests.
func NewPolygonFeedWithWebSocket(apiKey string, ws PolygonWebSocketService) *PolygonFeed {
	return &PolygonFeed{apiKey: apiKey, ws: ws}
}

// Name implements Feed.
func (f *PolygonFeed) Name() string { return "polygon" }

// Stream implements Feed. Events for tickers outside the requested set are
// dropped, since Polygon delivers all topic subscriptions on one channel.
func (f *PolygonFeed) Stream(ctx context.Context, symbols []string, interval types.Interval) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		if len(symbols) == 0 {
			yield(types.MarketData{}, errors.New(errors.ErrCodeInvalidParameter, "no symbols provided"))
			return
		}
		topic, err := convertIntervalToPolygonTopic(interval)
		if err != nil {
			yield(types.MarketData{}, err)
			return
		}

		if err := f.ws.Connect(); err != nil {
			yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to connect to polygon websocket", err))
			return
		}
		defer f.ws.Close()

		if err := f.ws.Subscribe(topic, symbols...); err != nil {
			yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to subscribe", err))
			return
		}

		wanted := make(map[string]struct{}, len(symbols))
		for _, symbol := range symbols {
			wanted[symbol] = struct{}{}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-f.ws.Output():
				if !ok {
					return
				}
				agg, isAgg := out.(models.EquityAgg)
				if !isAgg {
					continue
				}
				if _, want := wanted[agg.Symbol]; !want {
					continue
				}
				if !yield(convertEquityAggToMarketData(agg, interval), nil) {
					return
				}
			case err, ok := <-f.ws.Error():
				if !ok {
					return
				}
				if !yield(types.MarketData{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "websocket error", err)) {
					return
				}
			}
		}
	}
}

// convertEquityAggToMarketData maps a Polygon aggregate onto a candle. The
// aggregate's start timestamp (milliseconds) is the bar timestamp.
func convertEquityAggToMarketData(agg models.EquityAgg, interval types.Interval) types.MarketData {
	return types.MarketData{
		Symbol:   agg.Symbol,
		Interval: interval,
		Time:     time.UnixMilli(int64(agg.StartTimestamp)),
		Open:     agg.Open,
		High:     agg.High,
		Low:      agg.Low,
		Close:    agg.Close,
		Volume:   agg.Volume,
	}
}

// convertIntervalToPolygonTopic picks the aggregate topic: second bars for
// "1s", minute bars for everything else. Polygon only publishes second and
// minute aggregates over websocket.
func convertIntervalToPolygonTopic(interval types.Interval) (polygonws.Topic, error) {
	if interval == "1s" {
		return polygonws.StocksSecAggs, nil
	}
	if !interval.IsValid() {
		return 0, errors.Newf(errors.ErrCodeInvalidInterval, "invalid interval %q", interval)
	}
	return polygonws.StocksMinAggs, nil
}
