package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/schoolchow/notifier/internal/app/directory"
	"github.com/schoolchow/notifier/internal/contracts"
	"github.com/schoolchow/notifier/internal/platform/metrics"
	"github.com/schoolchow/notifier/internal/push"
)

var broadcastsTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "notifier_broadcast_messages_total",
	Help: "Broadcast messages submitted to the gateway by kind.",
}, []string{"kind"})

func init() {
	metrics.Default.MustRegister(broadcastsTotal)
}

var ErrDeliveryFailed = errors.New("push delivery failed")

type Gateway interface {
	Deliver(ctx context.Context, messages []push.Message) []push.ChunkResult
}

// Service sends one message to every member of a set of role cohorts,
// independent of any order transition. Both the daily schedule and the admin
// endpoint reduce to it.
type Service struct {
	Directory directory.Repository
	Gateway   Gateway
	Log       zerolog.Logger
}

func NewService(dir directory.Repository, gateway Gateway, log zerolog.Logger) *Service {
	return &Service{Directory: dir, Gateway: gateway, Log: log}
}

// Broadcast resolves each role cohort, renders one message per user, and
// submits the whole batch in a single delivery call. It returns the number
// of messages the gateway accepted.
func (s *Service) Broadcast(ctx context.Context, roles []string, kind string, render func(u contracts.User) push.Message) (int, error) {
	var messages []push.Message
	lookupFailures := 0
	var lastLookupErr error
	for _, role := range roles {
		users, err := s.Directory.FindByRole(ctx, role)
		if err != nil {
			lookupFailures++
			lastLookupErr = err
			s.Log.Error().Err(err).Str("role", role).Str("kind", kind).Msg("cohort lookup failed, skipping role")
			continue
		}
		for _, u := range users {
			msg := render(u)
			msg.To = u.PushToken
			messages = append(messages, msg)
		}
	}

	if len(messages) == 0 {
		if lookupFailures > 0 && lookupFailures == len(roles) {
			return 0, fmt.Errorf("all cohort lookups failed: %w", lastLookupErr)
		}
		return 0, nil
	}

	results := s.Gateway.Deliver(ctx, messages)
	sent := push.Sent(results)
	broadcastsTotal.WithLabelValues(kind).Add(float64(sent))
	s.Log.Info().Str("kind", kind).Strs("roles", roles).Int("sent", sent).Msg("broadcast delivered")

	if push.AllFailed(results) {
		return sent, ErrDeliveryFailed
	}
	return sent, nil
}

// SendDaily sends the morning prompt to every cohort, one message per user
// with a role-appropriate greeting.
func (s *Service) SendDaily(ctx context.Context) (int, error) {
	roles := []string{contracts.RoleRegularUser, contracts.RoleVendor, contracts.RoleDriver}
	return s.Broadcast(ctx, roles, "daily", func(u contracts.User) push.Message {
		return push.Message{
			Sound: "default",
			Title: dailyTitle,
			Body:  dailyBody(u),
			Data:  map[string]any{"daily": true},
		}
	})
}

// SendAnnouncement sends a caller-specified title and body to the given
// cohorts; the admin endpoint's delivery path.
func (s *Service) SendAnnouncement(ctx context.Context, roles []string, title, body string) (int, error) {
	return s.Broadcast(ctx, roles, "announcement", func(contracts.User) push.Message {
		return push.Message{
			Sound: "default",
			Title: title,
			Body:  body,
			Data:  map[string]any{"broadcast": true},
		}
	})
}

const dailyTitle = "School Chow 🍔"

func dailyBody(u contracts.User) string {
	name := u.DisplayName
	switch u.Role {
	case contracts.RoleVendor:
		if name == "" {
			name = "vendor"
		}
		return fmt.Sprintf("Hi %s, what's cooking today?", name)
	case contracts.RoleDriver:
		if name == "" {
			name = "driver"
		}
		return fmt.Sprintf("Hey %s, ready for new delivery requests today?", name)
	default:
		if name == "" {
			name = "friend"
		}
		return fmt.Sprintf("Hey %s, what would you like to eat today?", name)
	}
}
