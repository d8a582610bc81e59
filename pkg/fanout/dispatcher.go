// Package fanout publishes one harvest message per geography
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ErrPublishFailed is returned when a sink rejects a message mid-broadcast
var ErrPublishFailed = errors.New("publish failed")

// Message is the payload of one fan-out message
type Message struct {
	Geo string `json:"geo"`
}

// Summary is the broadcast outcome
type Summary struct {
	MessagesSent int `json:"messagesSent"`
}

// Sink receives encoded messages
type Sink interface {
	Publish(ctx context.Context, data []byte) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, data []byte) error

// Publish calls f
func (f SinkFunc) Publish(ctx context.Context, data []byte) error {
	return f(ctx, data)
}

// Dispatcher broadcasts geographies to a sink
type Dispatcher struct {
	log logrus.FieldLogger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{log: log.WithField("component", "fanout")}
}

// Broadcast publishes {"geo": g} for every geography in input order. It stops at the
// first publish failure and reports how many messages went out before it.
func (d *Dispatcher) Broadcast(ctx context.Context, table string, geos []string, sink Sink) (Summary, error) {
	var summary Summary

	for _, geo := range geos {
		data, err := json.Marshal(Message{Geo: geo})
		if err != nil {
			return summary, fmt.Errorf("failed to encode message for %q: %w", geo, err)
		}

		if err := sink.Publish(ctx, data); err != nil {
			observability.RecordMessagePublished(table, "failed")

			return summary, fmt.Errorf("%w for geo %q after %d messages: %w", ErrPublishFailed, geo, summary.MessagesSent, err)
		}

		observability.RecordMessagePublished(table, "success")

		summary.MessagesSent++
	}

	d.log.WithFields(logrus.Fields{
		"table": table,
		"sent":  summary.MessagesSent,
	}).Info("Broadcast complete")

	return summary, nil
}
