// Package sink publishes computed day aggregates to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
)

// Event types emitted by the pipeline.
const (
	TypeDayAggregate = "day_aggregate"
)

// Sink receives typed events.
type Sink interface {
	Emit(ctx context.Context, typ string, v any) error
	Close() error
}

// Envelope wraps every published event.
type Envelope struct {
	Type string          `json:"type"` // e.g. "day_aggregate"
	TS   int64           `json:"ts"`   // unix milli
	Data json.RawMessage `json:"data"`
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(context.Context, string, any) error { return nil }
func (NopSink) Close() error                            { return nil }
