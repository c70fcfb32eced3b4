package feed

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/schoolchow/notifier/internal/app/detector"
	"github.com/schoolchow/notifier/internal/app/fanout"
	"github.com/schoolchow/notifier/internal/contracts"
	"github.com/schoolchow/notifier/internal/push"
)

// ErrInvalidChangePayload marks records the subscription should discard
// rather than redeliver.
var ErrInvalidChangePayload = errors.New("invalid change payload")

// Snapshotter provides the full current order state for the bootstrap seed.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]contracts.Order, error)
}

// TransitionHandler realizes the fan-out for one detected transition.
type TransitionHandler interface {
	HandleTransition(ctx context.Context, t fanout.Transition, order contracts.Order) []push.ChunkResult
}

// Consumer turns raw feed records into detector observations. Records for
// the same order are serialized through the lane pool so the detector's
// before value stays correct.
type Consumer struct {
	Detector *detector.Detector
	Lanes    *detector.Lanes
	Fanout   TransitionHandler
	Log      zerolog.Logger
}

func NewConsumer(det *detector.Detector, lanes *detector.Lanes, handler TransitionHandler, log zerolog.Logger) *Consumer {
	return &Consumer{Detector: det, Lanes: lanes, Fanout: handler, Log: log}
}

// Bootstrap seeds the transition cache from the order store. Pre-existing
// data never produces a notification; a restart trades one suppressed round
// of notifications for no re-notification storms.
func (c *Consumer) Bootstrap(ctx context.Context, store Snapshotter) error {
	orders, err := store.Snapshot(ctx)
	if err != nil {
		return err
	}
	c.Detector.Seed(orders)
	c.Log.Info().Int("orders", len(orders)).Msg("transition cache seeded from snapshot")
	return nil
}

// Handle parses one change record and schedules it on the order's lane.
// Added and removed records are acknowledged without observation: no
// notification rule keys on them.
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	var change contracts.OrderChange
	if err := json.Unmarshal(payload, &change); err != nil {
		return ErrInvalidChangePayload
	}
	if change.Order.ID == "" || !contracts.ValidStatus(change.Order.Status) {
		return ErrInvalidChangePayload
	}

	switch change.Type {
	case contracts.ChangeModified:
	case contracts.ChangeAdded, contracts.ChangeRemoved:
		return nil
	default:
		return ErrInvalidChangePayload
	}

	order := change.Order
	c.Lanes.Submit(order.ID, func() {
		res := c.Detector.Observe(order.ID, order.Status)
		if !res.IsTransition() {
			return
		}
		c.Fanout.HandleTransition(ctx, fanout.Transition{From: res.From, To: res.To}, order)
	})
	return nil
}
