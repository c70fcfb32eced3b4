package fanout

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/schoolchow/notifier/internal/contracts"
	"github.com/schoolchow/notifier/internal/push"
)

type fakeDirectory struct {
	byID   map[string]contracts.User
	byRole map[string][]contracts.User
	errFor string
}

func (f *fakeDirectory) FindByIdentity(_ context.Context, userID string) ([]contracts.User, error) {
	if f.errFor == userID {
		return nil, errors.New("directory unavailable")
	}
	u, ok := f.byID[userID]
	if !ok {
		return nil, nil
	}
	return []contracts.User{u}, nil
}

func (f *fakeDirectory) FindByRole(_ context.Context, role string) ([]contracts.User, error) {
	if f.errFor == "role:"+role {
		return nil, errors.New("directory unavailable")
	}
	return f.byRole[role], nil
}

type fakeClaimer struct {
	claimed map[string]bool
	calls   int
}

func (f *fakeClaimer) ClaimCompletionNotified(_ context.Context, orderID string) (bool, error) {
	f.calls++
	if f.claimed[orderID] {
		return false, nil
	}
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	f.claimed[orderID] = true
	return true, nil
}

type fakeGateway struct {
	delivered [][]push.Message
}

func (f *fakeGateway) Deliver(_ context.Context, messages []push.Message) []push.ChunkResult {
	f.delivered = append(f.delivered, messages)
	return []push.ChunkResult{{Index: 0, Size: len(messages)}}
}

func token(name string) string { return "ExponentPushToken[" + name + "]" }

func newTestService() (*Service, *fakeDirectory, *fakeClaimer, *fakeGateway) {
	dir := &fakeDirectory{
		byID: map[string]contracts.User{
			"vendor-1":   {ID: "vendor-1", Role: contracts.RoleVendor, DisplayName: "Ada", PushToken: token("v1")},
			"customer-1": {ID: "customer-1", Role: contracts.RoleRegularUser, DisplayName: "Bisi", PushToken: token("c1")},
			"driver-1":   {ID: "driver-1", Role: contracts.RoleDriver, DisplayName: "Chidi", PushToken: token("d1")},
		},
		byRole: map[string][]contracts.User{
			contracts.RoleDriver: {
				{ID: "driver-1", Role: contracts.RoleDriver, DisplayName: "Chidi", PushToken: token("d1")},
				{ID: "driver-2", Role: contracts.RoleDriver, DisplayName: "Dayo", PushToken: token("d2")},
			},
		},
	}
	claimer := &fakeClaimer{}
	gateway := &fakeGateway{}
	svc := NewService(dir, claimer, gateway, zerolog.Nop())
	return svc, dir, claimer, gateway
}

func TestHandleTransition_NewPendingOrder(t *testing.T) {
	svc, _, _, gateway := newTestService()

	o := order(contracts.StatusPending, "")
	svc.HandleTransition(context.Background(), Transition{From: contracts.StatusCart, To: contracts.StatusPending}, o)

	if len(gateway.delivered) != 1 || len(gateway.delivered[0]) != 1 {
		t.Fatalf("expected exactly one message, got %+v", gateway.delivered)
	}
	msg := gateway.delivered[0][0]
	if msg.To != token("v1") {
		t.Fatalf("message not addressed to vendor token: %q", msg.To)
	}
	if !strings.Contains(msg.Body, "Jollof rice") {
		t.Fatalf("body missing item description: %q", msg.Body)
	}
}

func TestHandleTransition_CompletedNotifiesVendorAndDriver(t *testing.T) {
	svc, _, _, gateway := newTestService()

	o := order(contracts.StatusCompleted, "driver-1")
	svc.HandleTransition(context.Background(), Transition{From: contracts.StatusDispatched, To: contracts.StatusCompleted}, o)

	if len(gateway.delivered) != 1 || len(gateway.delivered[0]) != 2 {
		t.Fatalf("expected exactly two messages in one delivery, got %+v", gateway.delivered)
	}
	if gateway.delivered[0][0].To != token("v1") || gateway.delivered[0][1].To != token("d1") {
		t.Fatalf("unexpected recipients: %q %q", gateway.delivered[0][0].To, gateway.delivered[0][1].To)
	}
}

func TestHandleTransition_CompletedReplayIsIdempotent(t *testing.T) {
	svc, _, claimer, gateway := newTestService()

	o := order(contracts.StatusCompleted, "driver-1")
	tr := Transition{From: contracts.StatusDispatched, To: contracts.StatusCompleted}
	svc.HandleTransition(context.Background(), tr, o)
	svc.HandleTransition(context.Background(), tr, o)

	if len(gateway.delivered) != 1 {
		t.Fatalf("replay must not re-notify, deliveries: %d", len(gateway.delivered))
	}
	if claimer.calls != 2 {
		t.Fatalf("guard must be consulted on each replay, calls: %d", claimer.calls)
	}
}

func TestHandleTransition_GuardClaimedOncePerTransition(t *testing.T) {
	svc, _, claimer, _ := newTestService()

	o := order(contracts.StatusCompleted, "driver-1")
	svc.HandleTransition(context.Background(), Transition{From: contracts.StatusDispatched, To: contracts.StatusCompleted}, o)

	if claimer.calls != 1 {
		t.Fatalf("one transition must claim the guard once, calls: %d", claimer.calls)
	}
}

func TestHandleTransition_DriverCohortFanout(t *testing.T) {
	svc, _, _, gateway := newTestService()

	o := order(contracts.StatusPackaged, "")
	svc.HandleTransition(context.Background(), Transition{From: contracts.StatusPending, To: contracts.StatusPackaged}, o)

	if len(gateway.delivered) != 1 || len(gateway.delivered[0]) != 2 {
		t.Fatalf("expected both drivers notified, got %+v", gateway.delivered)
	}
}

func TestHandleTransition_LookupFailureSkipsDirectiveOnly(t *testing.T) {
	svc, dir, _, gateway := newTestService()
	dir.errFor = "vendor-1"

	o := order(contracts.StatusCompleted, "driver-1")
	svc.HandleTransition(context.Background(), Transition{From: contracts.StatusDispatched, To: contracts.StatusCompleted}, o)

	if len(gateway.delivered) != 1 || len(gateway.delivered[0]) != 1 {
		t.Fatalf("driver directive must survive vendor lookup failure, got %+v", gateway.delivered)
	}
	if gateway.delivered[0][0].To != token("d1") {
		t.Fatalf("surviving message should target driver, got %q", gateway.delivered[0][0].To)
	}
}

func TestHandleTransition_NoDirectivesNoDelivery(t *testing.T) {
	svc, _, _, gateway := newTestService()

	o := order(contracts.StatusPackaged, "driver-1")
	svc.HandleTransition(context.Background(), Transition{From: contracts.StatusPending, To: contracts.StatusPackaged}, o)

	if len(gateway.delivered) != 0 {
		t.Fatalf("expected no delivery, got %+v", gateway.delivered)
	}
}

func TestHandleTransition_MissingRecipientIsNotAnError(t *testing.T) {
	svc, dir, _, gateway := newTestService()
	delete(dir.byID, "vendor-1")

	o := order(contracts.StatusPending, "")
	svc.HandleTransition(context.Background(), Transition{From: contracts.StatusCart, To: contracts.StatusPending}, o)

	if len(gateway.delivered) != 0 {
		t.Fatalf("no matching user means nothing to deliver, got %+v", gateway.delivered)
	}
}
