package fanout

import (
	"fmt"

	"github.com/schoolchow/notifier/internal/contracts"
	"github.com/schoolchow/notifier/internal/push"
)

// Title is the notification headline used across the product.
const Title = "School Chow 🍔"

// Transition is a real before/after status change for one order, as reported
// by the detector.
type Transition struct {
	From string
	To   string
}

// Selector picks recipients either by exact identity or by role cohort.
// Exactly one field is set.
type Selector struct {
	UserID string
	Role   string
}

func ByUser(userID string) Selector { return Selector{UserID: userID} }
func ByRole(role string) Selector   { return Selector{Role: role} }

// Directive pairs a recipient selector with a message template. Guarded
// directives must win the order's completion-notified claim before they are
// realized.
type Directive struct {
	Rule     string
	Guarded  bool
	Selector Selector
	Render   func(u contracts.User) push.Message
}

type rule struct {
	name    string
	guarded bool
	matches func(t Transition, o contracts.Order) bool
	expand  func(o contracts.Order) []Directive
}

// Rules are evaluated as independent, non-exclusive matches. Each states its
// own full precondition so evaluation order never couples rules: a driver
// unassignment bouncing an order from dispatched back to packaged still
// triggers the driver broadcast even though the happy path already covered
// pending to packaged.
var rules = []rule{
	{
		name: "vendor_new_pending",
		matches: func(t Transition, o contracts.Order) bool {
			return t.From == contracts.StatusCart && t.To == contracts.StatusPending
		},
		expand: func(o contracts.Order) []Directive {
			return []Directive{{
				Selector: ByUser(o.VendorID),
				Render: func(u contracts.User) push.Message {
					return orderMessage(o, fmt.Sprintf("Hi %s! New pending order: %s", displayName(u, "there"), o.ItemDescription))
				},
			}}
		},
	},
	{
		name: "drivers_dispatch_request",
		matches: func(t Transition, o contracts.Order) bool {
			return t.From == contracts.StatusPending && t.To == contracts.StatusPackaged && o.DriverID == ""
		},
		expand: func(o contracts.Order) []Directive {
			return []Directive{{
				Selector: ByRole(contracts.RoleDriver),
				Render: func(u contracts.User) push.Message {
					return orderMessage(o, fmt.Sprintf("Hey %s! New dispatch request available.", displayName(u, "driver")))
				},
			}}
		},
	},
	{
		name: "drivers_dispatch_reopened",
		matches: func(t Transition, o contracts.Order) bool {
			return t.From == contracts.StatusDispatched && t.To == contracts.StatusPackaged && o.DriverID == ""
		},
		expand: func(o contracts.Order) []Directive {
			return []Directive{{
				Selector: ByRole(contracts.RoleDriver),
				Render: func(u contracts.User) push.Message {
					return orderMessage(o, fmt.Sprintf("Hey %s! A dispatch request is available again.", displayName(u, "driver")))
				},
			}}
		},
	},
	{
		name: "customer_dispatched",
		matches: func(t Transition, o contracts.Order) bool {
			return t.To == contracts.StatusDispatched
		},
		expand: func(o contracts.Order) []Directive {
			return []Directive{{
				Selector: ByUser(o.CustomerID),
				Render: func(u contracts.User) push.Message {
					return orderMessage(o, fmt.Sprintf("Hi %s! Your order (%s) is now dispatched.", displayName(u, "there"), o.ItemDescription))
				},
			}}
		},
	},
	{
		name:    "vendor_driver_completed",
		guarded: true,
		matches: func(t Transition, o contracts.Order) bool {
			return t.From == contracts.StatusDispatched && t.To == contracts.StatusCompleted
		},
		expand: func(o contracts.Order) []Directive {
			directives := []Directive{{
				Selector: ByUser(o.VendorID),
				Render: func(u contracts.User) push.Message {
					return orderMessage(o, fmt.Sprintf("Hi %s! Order %s completed. Your account has been credited.", displayName(u, "there"), o.ItemDescription))
				},
			}}
			if o.DriverID != "" {
				directives = append(directives, Directive{
					Selector: ByUser(o.DriverID),
					Render: func(u contracts.User) push.Message {
						return orderMessage(o, fmt.Sprintf("Hi %s! Your account has been credited.", displayName(u, "there")))
					},
				})
			}
			return directives
		},
	},
	{
		name: "customer_refunded",
		matches: func(t Transition, o contracts.Order) bool {
			switch t.From {
			case contracts.StatusPending, contracts.StatusPackaged, contracts.StatusDispatched:
				return t.To == contracts.StatusRefunded
			default:
				return false
			}
		},
		expand: func(o contracts.Order) []Directive {
			return []Directive{{
				Selector: ByUser(o.CustomerID),
				Render: func(u contracts.User) push.Message {
					return orderMessage(o, fmt.Sprintf("Hi %s! Your order (%s) has been refunded. We're sorry for the inconvenience.", displayName(u, "there"), o.ItemDescription))
				},
			}}
		},
	},
}

// Expand evaluates the rule table for one transition and order snapshot. It
// is a pure function: realizing the directives, including the completion
// guard, is the service's job.
func Expand(t Transition, o contracts.Order) []Directive {
	var directives []Directive
	for _, r := range rules {
		if !r.matches(t, o) {
			continue
		}
		for _, d := range r.expand(o) {
			d.Rule = r.name
			d.Guarded = r.guarded
			directives = append(directives, d)
		}
	}
	return directives
}

func displayName(u contracts.User, fallback string) string {
	if u.DisplayName == "" {
		return fallback
	}
	return u.DisplayName
}

func orderMessage(o contracts.Order, body string) push.Message {
	return push.Message{
		Sound: "default",
		Title: Title,
		Body:  body,
		Data:  map[string]any{"orderId": o.ID},
	}
}
