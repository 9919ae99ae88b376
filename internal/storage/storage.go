package storage

import (
	"context"
	"fmt"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
	"github.com/zakhard90/chainlink-price-feed/internal/trader"
)

// Storage defines a sink for journal records.
type Storage interface {
	PutEventBatch(ctx context.Context, records []model.EventRecord) error
}

// Sink adapts a Storage to the trader event stream, one record per event.
func Sink(s Storage) trader.EventSink {
	return trader.SinkFunc(func(ctx context.Context, env trader.Envelope) error {
		rec, err := trader.Record(env)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		return s.PutEventBatch(ctx, []model.EventRecord{rec})
	})
}
