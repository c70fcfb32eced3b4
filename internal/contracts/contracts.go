package contracts

import "time"

// Order statuses as they appear in the ordering flow. The notifier never
// creates or deletes orders, it only observes status movement.
const (
	StatusCart       = "cart"
	StatusPending    = "pending"
	StatusPackaged   = "packaged"
	StatusDispatched = "dispatched"
	StatusCompleted  = "completed"
	StatusRefunded   = "refunded"
)

// User roles. Every user record carries exactly one.
const (
	RoleRegularUser = "regular_user"
	RoleVendor      = "vendor"
	RoleDriver      = "driver"
)

// Change record types on the order feed.
const (
	ChangeAdded    = "added"
	ChangeModified = "modified"
	ChangeRemoved  = "removed"
)

// Order is the full order snapshot carried by every change record.
type Order struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	VendorID           string     `json:"vendor_id"`
	CustomerID         string     `json:"customer_id"`
	DriverID           string     `json:"driver_id,omitempty"`
	ItemDescription    string     `json:"item_description"`
	CreatedAt          time.Time  `json:"created_at"`
	PackagedAt         *time.Time `json:"packaged_at,omitempty"`
	DispatchedAt       *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CompletionNotified bool       `json:"completion_notified"`
}

// User is a push recipient candidate. PushToken is empty when the user has
// no registered device.
type User struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	PushToken   string `json:"push_token,omitempty"`
}

// OrderChange is the change record published on the order feed. The feed
// carries no prior value, which is why the notifier keeps its own status
// cache.
type OrderChange struct {
	ChangeID   string    `json:"change_id"`
	Type       string    `json:"type"`
	Order      Order     `json:"order"`
	ObservedAt time.Time `json:"observed_at"`
}

func ValidStatus(status string) bool {
	switch status {
	case StatusCart, StatusPending, StatusPackaged, StatusDispatched, StatusCompleted, StatusRefunded:
		return true
	default:
		return false
	}
}

func ValidRole(role string) bool {
	switch role {
	case RoleRegularUser, RoleVendor, RoleDriver:
		return true
	default:
		return false
	}
}
