package fanout

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/schoolchow/notifier/internal/app/directory"
	"github.com/schoolchow/notifier/internal/contracts"
	"github.com/schoolchow/notifier/internal/platform/metrics"
	"github.com/schoolchow/notifier/internal/push"
)

var (
	transitionsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "notifier_transitions_total",
		Help: "Detected order status transitions by status pair.",
	}, []string{"from", "to"})
	notificationsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "notifier_notifications_submitted_total",
		Help: "Push messages submitted to the gateway by rule.",
	}, []string{"rule"})
	chunksFailedTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "notifier_push_chunks_failed_total",
		Help: "Gateway chunks that errored, by source.",
	}, []string{"source"})
)

func init() {
	metrics.Default.MustRegister(transitionsTotal, notificationsTotal, chunksFailedTotal)
}

// Gateway is the delivery surface the fan-out engine talks to.
type Gateway interface {
	Deliver(ctx context.Context, messages []push.Message) []push.ChunkResult
}

// CompletionClaimer flips an order's completion-notified guard, reporting
// whether this caller won the claim.
type CompletionClaimer interface {
	ClaimCompletionNotified(ctx context.Context, orderID string) (bool, error)
}

// Service realizes rule directives for one transition: resolve recipients,
// collect every message, then make a single delivery call. Batch-then-send
// keeps gateway round-trips down and makes chunk-failure isolation
// meaningful at the transition level.
type Service struct {
	Directory directory.Repository
	Orders    CompletionClaimer
	Gateway   Gateway
	Log       zerolog.Logger
}

func NewService(dir directory.Repository, claimer CompletionClaimer, gateway Gateway, log zerolog.Logger) *Service {
	return &Service{Directory: dir, Orders: claimer, Gateway: gateway, Log: log}
}

// HandleTransition runs the rule table for one detected transition. Lookup
// failures skip their own directive; a guard already held drops only the
// guarded directives. Chunk outcomes are returned for observability, never
// retried.
func (s *Service) HandleTransition(ctx context.Context, t Transition, order contracts.Order) []push.ChunkResult {
	transitionsTotal.WithLabelValues(t.From, t.To).Inc()

	directives := Expand(t, order)
	if len(directives) == 0 {
		return nil
	}

	guardWon := false
	guardChecked := false
	var messages []push.Message
	for _, d := range directives {
		if d.Guarded {
			if !guardChecked {
				guardChecked = true
				won, err := s.Orders.ClaimCompletionNotified(ctx, order.ID)
				if err != nil {
					s.Log.Error().Err(err).Str("order_id", order.ID).Msg("completion guard claim failed")
				} else {
					guardWon = won
				}
			}
			if !guardWon {
				s.Log.Debug().Str("order_id", order.ID).Str("rule", d.Rule).Msg("completion already notified, dropping directive")
				continue
			}
		}

		recipients, err := s.resolve(ctx, d.Selector)
		if err != nil {
			s.Log.Error().Err(err).
				Str("order_id", order.ID).
				Str("rule", d.Rule).
				Str("from", t.From).Str("to", t.To).
				Msg("recipient lookup failed, skipping directive")
			continue
		}

		for _, u := range recipients {
			msg := d.Render(u)
			msg.To = u.PushToken
			messages = append(messages, msg)
			notificationsTotal.WithLabelValues(d.Rule).Inc()
		}
	}

	if len(messages) == 0 {
		return nil
	}

	results := s.Gateway.Deliver(ctx, messages)
	for _, res := range results {
		if res.Err != nil {
			chunksFailedTotal.WithLabelValues("transition").Inc()
		}
	}
	s.Log.Info().
		Str("order_id", order.ID).
		Str("from", t.From).Str("to", t.To).
		Int("messages", len(messages)).
		Int("sent", push.Sent(results)).
		Msg("transition fan-out delivered")
	return results
}

func (s *Service) resolve(ctx context.Context, sel Selector) ([]contracts.User, error) {
	if sel.Role != "" {
		return s.Directory.FindByRole(ctx, sel.Role)
	}
	if sel.UserID == "" {
		return nil, nil
	}
	return s.Directory.FindByIdentity(ctx, sel.UserID)
}
