package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusCreated Status = "created"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPaid, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
// Nothing goes back to created; a failed order may still be paid because the
// gateway can capture after the client gave up.
func (s Status) CanTransition(next Status) bool {
	switch {
	case s == next:
		return true
	case next == StatusPaid:
		return s == StatusCreated || s == StatusFailed
	case next == StatusFailed:
		return s == StatusCreated
	}
	return false
}

// ItemType tags which purchasable entity an order is bound to.
type ItemType string

const (
	ItemCourse      ItemType = "course"
	ItemProject     ItemType = "project"
	ItemCertificate ItemType = "internship_certificate"
)

// ErrInvalidItemType is returned by ParseItemType for unknown tags.
var ErrInvalidItemType = errors.New("invalid item type")

// ParseItemType accepts the three item tags plus the short "certificate" alias.
func ParseItemType(s string) (ItemType, error) {
	switch s {
	case string(ItemCourse):
		return ItemCourse, nil
	case string(ItemProject):
		return ItemProject, nil
	case string(ItemCertificate), "certificate":
		return ItemCertificate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidItemType, s)
}

// Currency is the only currency the platform bills in.
const Currency = "INR"

// Order is one purchase attempt mirrored against a remote gateway order.
// Exactly one of CourseID, ProjectID, ApplicationID is set.
type Order struct {
	OrderID         string          `json:"id"`
	UserID          int64           `json:"user_id"`
	CourseID        *int64          `json:"course_id"`
	ProjectID       *int64          `json:"project_id"`
	ApplicationID   *int64          `json:"application_id"`
	GatewayOrderRef string          `json:"gateway_order_ref"`
	Receipt         string          `json:"receipt,omitempty"`
	Amount          int64           `json:"amount"` // minor units (paise)
	Currency        string          `json:"currency"`
	Status          Status          `json:"status"`
	IsMock          bool            `json:"is_mock"`
	PaymentDetails  json.RawMessage `json:"payment_details"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

// ItemType derives the item tag from whichever reference is set.
func (o Order) ItemType() ItemType {
	switch {
	case o.CourseID != nil:
		return ItemCourse
	case o.ProjectID != nil:
		return ItemProject
	case o.ApplicationID != nil:
		return ItemCertificate
	}
	return ""
}

// ItemID returns the id of the purchasable entity, or 0 when none is set.
func (o Order) ItemID() int64 {
	switch {
	case o.CourseID != nil:
		return *o.CourseID
	case o.ProjectID != nil:
		return *o.ProjectID
	case o.ApplicationID != nil:
		return *o.ApplicationID
	}
	return 0
}

// BindItem sets the single purchasable reference for itemType and clears the others.
func (o *Order) BindItem(itemType ItemType, itemID int64) error {
	o.CourseID, o.ProjectID, o.ApplicationID = nil, nil, nil
	id := itemID
	switch itemType {
	case ItemCourse:
		o.CourseID = &id
	case ItemProject:
		o.ProjectID = &id
	case ItemCertificate:
		o.ApplicationID = &id
	default:
		return fmt.Errorf("%w: %q", ErrInvalidItemType, itemType)
	}
	return nil
}

// Validate checks the record-level invariants before persisting.
func (o Order) Validate() error {
	refs := 0
	for _, r := range []*int64{o.CourseID, o.ProjectID, o.ApplicationID} {
		if r != nil {
			refs++
		}
	}
	switch {
	case o.OrderID == "":
		return errors.New("order id is required")
	case o.GatewayOrderRef == "":
		return errors.New("gateway order ref is required")
	case refs != 1:
		return fmt.Errorf("order must reference exactly one item, got %d", refs)
	case o.Amount <= 0:
		return fmt.Errorf("amount must be positive, got %d", o.Amount)
	case !o.Status.Valid():
		return fmt.Errorf("invalid status %q", o.Status)
	}
	return nil
}

// Page is one slice of a newest-first listing.
type Page struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"next_cursor,omitempty"`
}
