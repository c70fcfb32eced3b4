package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const ordersStream = "ORDERS"

// ChangeSubjects is the wildcard the notifier subscribes to for order
// change records.
const ChangeSubjects = "orders.change.>"

// EnsureStreams creates (or validates) the stream carrying order change
// records: orders.change.>
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(ordersStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      ordersStream,
				Subjects:  []string{ChangeSubjects},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}
	return nil
}
