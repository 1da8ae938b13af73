package releases

import "time"

type Approval string

const (
	ApprovalPending   Approval = "pending"
	ApprovalApproved  Approval = "approved"
	ApprovalCancelled Approval = "cancelled"
)

func ValidApproval(a string) bool {
	switch Approval(a) {
	case ApprovalPending, ApprovalApproved, ApprovalCancelled:
		return true
	}
	return false
}

type ReturnState string

const (
	ReturnPending   ReturnState = "pending"
	ReturnPartially ReturnState = "partially_returned"
	ReturnFully     ReturnState = "fully_returned"
)

// Release records stock handed out. Quantity never changes after creation;
// QtyReturned tracks what has come back against it.
type Release struct {
	ID               string      `json:"id"`
	ItemID           string      `json:"item_id"`
	ItemName         string      `json:"item_name,omitempty"`
	Quantity         int         `json:"quantity"`
	QtyReturned      int         `json:"qty_returned"`
	Recipient        string      `json:"recipient"`
	ReleasedBy       string      `json:"released_by"`
	ReleasedByName   string      `json:"released_by_name,omitempty"`
	Reason           string      `json:"reason"`
	Returnable       bool        `json:"returnable"`
	ExpectedReturnBy *time.Time  `json:"expected_return_by,omitempty"`
	Approval         Approval    `json:"approval_status"`
	ReturnStatus     ReturnState `json:"return_status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (r *Release) Outstanding() int { return r.Quantity - r.QtyReturned }

// ===== Requests =====

// ItemReleaseRequest is the body of POST /items/:id/release.
type ItemReleaseRequest struct {
	Quantity         int     `json:"quantity" binding:"required,gt=0"`
	Recipient        string  `json:"recipient" binding:"required,max=255"`
	Reason           string  `json:"reason" binding:"required"`
	Returnable       bool    `json:"returnable"`
	ExpectedReturnBy *string `json:"expected_return_by,omitempty"`
}

// LegacyReleaseRequest is the body of POST /releases. Reason is optional and
// returnable defaults to the item's refundable flag.
type LegacyReleaseRequest struct {
	ItemID           string  `json:"item_id" binding:"required"`
	Quantity         int     `json:"quantity" binding:"required,gt=0"`
	Recipient        string  `json:"recipient" binding:"required,max=255"`
	Reason           string  `json:"reason"`
	Returnable       *bool   `json:"returnable,omitempty"`
	ExpectedReturnBy *string `json:"expected_return_by,omitempty"`
}

// CreateInput is what both release paths reduce to.
type CreateInput struct {
	ItemID           string
	Quantity         int
	Recipient        string
	Reason           string
	RequireReason    bool
	Returnable       *bool
	ExpectedReturnBy *time.Time
}

type UpdateRequest struct {
	ItemID           *string `json:"item_id,omitempty"`
	Recipient        *string `json:"recipient,omitempty" binding:"omitempty,max=255"`
	Reason           *string `json:"reason,omitempty"`
	Returnable       *bool   `json:"returnable,omitempty"`
	ExpectedReturnBy *string `json:"expected_return_by,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending approved cancelled"`
}

type Filter struct {
	ItemID          *string
	ReleasedBy      *string
	Recipient       *string
	Approval        *Approval
	From            *time.Time
	To              *time.Time
	Returnable      *bool
	OutstandingOnly bool
}

type ListResult struct {
	Items      []Release `json:"items"`
	Total      int64     `json:"total"`
	NextOffset int       `json:"next_offset"`
}
