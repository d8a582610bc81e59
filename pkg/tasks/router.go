package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/trendsync/pkg/fanout"
	"github.com/ethpandaops/trendsync/pkg/harvest"
	"github.com/sirupsen/logrus"
)

// Harvester runs a table
type Harvester interface {
	Run(ctx context.Context, table string, req harvest.Request) (*harvest.Result, error)
}

// Broadcaster fans out a table's geographies
type Broadcaster interface {
	Broadcast(ctx context.Context, table string) (fanout.Summary, error)
}

// Router sends decoded requests to the harvester or the broadcaster
type Router struct {
	log         logrus.FieldLogger
	harvester   Harvester
	broadcaster Broadcaster
}

// NewRouter creates a router
func NewRouter(log logrus.FieldLogger, harvester Harvester, broadcaster Broadcaster) *Router {
	return &Router{
		log:         log.WithField("component", "router"),
		harvester:   harvester,
		broadcaster: broadcaster,
	}
}

// Route executes req and returns a *harvest.Result or a fanout.Summary
func (r *Router) Route(ctx context.Context, req Request) (any, error) {
	switch req := req.(type) {
	case BroadcastRequest:
		r.log.WithField("table", req.Table).Info("Routing broadcast")

		summary, err := r.broadcaster.Broadcast(ctx, req.Table)
		if err != nil {
			return nil, err
		}

		return summary, nil
	case HarvestRequest:
		r.log.WithFields(logrus.Fields{
			"table":    req.Table,
			"geo":      req.Geo,
			"explicit": req.Start != nil,
		}).Info("Routing harvest")

		return r.harvester.Run(ctx, req.Table, harvest.Request{
			Start: req.Start,
			End:   req.End,
			Geo:   req.Geo,
		})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRequest, req)
	}
}

// ErrorKind extends harvest.Kind with routing and fan-out failures
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedRequest):
		return "UnsupportedRequest"
	case errors.Is(err, fanout.ErrUnknownTable):
		return harvest.KindUnknownTable
	case errors.Is(err, fanout.ErrPublishFailed):
		return "PublishFailed"
	default:
		return harvest.Kind(err)
	}
}

// Retryable reports whether redelivering the message could succeed
func Retryable(err error) bool {
	switch ErrorKind(err) {
	case "UnsupportedRequest", harvest.KindInvalidRange, harvest.KindNoWatermark,
		harvest.KindUnknownTable, harvest.KindProviderPermanent:
		return false
	default:
		return true
	}
}
