package fanout

import (
	"strings"
	"testing"

	"github.com/schoolchow/notifier/internal/contracts"
)

func order(status, driverID string) contracts.Order {
	return contracts.Order{
		ID:              "order-1",
		Status:          status,
		VendorID:        "vendor-1",
		CustomerID:      "customer-1",
		DriverID:        driverID,
		ItemDescription: "Jollof rice",
	}
}

func selectors(directives []Directive) []Selector {
	out := make([]Selector, 0, len(directives))
	for _, d := range directives {
		out = append(out, d.Selector)
	}
	return out
}

func TestExpand_CartToPendingNotifiesVendor(t *testing.T) {
	directives := Expand(Transition{From: contracts.StatusCart, To: contracts.StatusPending}, order(contracts.StatusPending, ""))
	if len(directives) != 1 {
		t.Fatalf("expected 1 directive, got %d", len(directives))
	}
	if directives[0].Selector.UserID != "vendor-1" {
		t.Fatalf("expected vendor selector, got %+v", directives[0].Selector)
	}

	msg := directives[0].Render(contracts.User{DisplayName: "Ada"})
	if !strings.Contains(msg.Body, "Ada") || !strings.Contains(msg.Body, "Jollof rice") {
		t.Fatalf("unexpected body: %q", msg.Body)
	}
	if msg.Data["orderId"] != "order-1" {
		t.Fatalf("missing order id in payload: %+v", msg.Data)
	}
}

func TestExpand_PendingToPackagedWithoutDriverBroadcastsDrivers(t *testing.T) {
	directives := Expand(Transition{From: contracts.StatusPending, To: contracts.StatusPackaged}, order(contracts.StatusPackaged, ""))
	if len(directives) != 1 || directives[0].Selector.Role != contracts.RoleDriver {
		t.Fatalf("expected driver cohort directive, got %+v", selectors(directives))
	}
}

func TestExpand_PendingToPackagedWithDriverIsSilent(t *testing.T) {
	directives := Expand(Transition{From: contracts.StatusPending, To: contracts.StatusPackaged}, order(contracts.StatusPackaged, "driver-1"))
	if len(directives) != 0 {
		t.Fatalf("expected no directives, got %+v", selectors(directives))
	}
}

func TestExpand_DispatchedToPackagedReopensDriverRequest(t *testing.T) {
	directives := Expand(Transition{From: contracts.StatusDispatched, To: contracts.StatusPackaged}, order(contracts.StatusPackaged, ""))
	if len(directives) != 1 || directives[0].Selector.Role != contracts.RoleDriver {
		t.Fatalf("expected driver cohort directive, got %+v", selectors(directives))
	}
	msg := directives[0].Render(contracts.User{})
	if !strings.Contains(msg.Body, "driver") || !strings.Contains(msg.Body, "again") {
		t.Fatalf("unexpected reopened body: %q", msg.Body)
	}
}

func TestExpand_AnyToDispatchedNotifiesCustomer(t *testing.T) {
	for _, from := range []string{contracts.StatusPending, contracts.StatusPackaged} {
		directives := Expand(Transition{From: from, To: contracts.StatusDispatched}, order(contracts.StatusDispatched, "driver-1"))
		if len(directives) != 1 || directives[0].Selector.UserID != "customer-1" {
			t.Fatalf("from %s: expected customer directive, got %+v", from, selectors(directives))
		}
	}
}

func TestExpand_DispatchedToCompletedNotifiesVendorAndDriver(t *testing.T) {
	directives := Expand(Transition{From: contracts.StatusDispatched, To: contracts.StatusCompleted}, order(contracts.StatusCompleted, "driver-1"))
	if len(directives) != 2 {
		t.Fatalf("expected vendor and driver directives, got %+v", selectors(directives))
	}
	if directives[0].Selector.UserID != "vendor-1" || directives[1].Selector.UserID != "driver-1" {
		t.Fatalf("unexpected selectors: %+v", selectors(directives))
	}
	for _, d := range directives {
		if !d.Guarded {
			t.Fatalf("completed directives must be guarded: %+v", d)
		}
	}
}

func TestExpand_CompletedWithoutDriverOnlyVendor(t *testing.T) {
	directives := Expand(Transition{From: contracts.StatusDispatched, To: contracts.StatusCompleted}, order(contracts.StatusCompleted, ""))
	if len(directives) != 1 || directives[0].Selector.UserID != "vendor-1" {
		t.Fatalf("expected only vendor directive, got %+v", selectors(directives))
	}
}

func TestExpand_RefundNotifiesCustomer(t *testing.T) {
	for _, from := range []string{contracts.StatusPending, contracts.StatusPackaged, contracts.StatusDispatched} {
		directives := Expand(Transition{From: from, To: contracts.StatusRefunded}, order(contracts.StatusRefunded, ""))
		if len(directives) != 1 || directives[0].Selector.UserID != "customer-1" {
			t.Fatalf("from %s: expected customer refund directive, got %+v", from, selectors(directives))
		}
	}

	directives := Expand(Transition{From: contracts.StatusCart, To: contracts.StatusRefunded}, order(contracts.StatusRefunded, ""))
	if len(directives) != 0 {
		t.Fatalf("cart to refunded must not notify, got %+v", selectors(directives))
	}
}

func TestExpand_DisplayNameFallbacks(t *testing.T) {
	directives := Expand(Transition{From: contracts.StatusCart, To: contracts.StatusPending}, order(contracts.StatusPending, ""))
	msg := directives[0].Render(contracts.User{})
	if !strings.Contains(msg.Body, "Hi there!") {
		t.Fatalf("expected generic greeting, got %q", msg.Body)
	}
}

func TestExpand_NoRuleForUnlistedPairs(t *testing.T) {
	pairs := []Transition{
		{From: contracts.StatusPackaged, To: contracts.StatusCompleted},
		{From: contracts.StatusCompleted, To: contracts.StatusRefunded},
		{From: contracts.StatusPending, To: contracts.StatusCart},
	}
	for _, tr := range pairs {
		if got := Expand(tr, order(tr.To, "")); len(got) != 0 {
			t.Fatalf("%s to %s must not match any rule, got %+v", tr.From, tr.To, selectors(got))
		}
	}
}
