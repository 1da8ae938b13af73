package items

import (
	"time"
)

type Status string

const (
	StatusIn      Status = "in"
	StatusOut     Status = "out"
	StatusDeleted Status = "deleted"
)

type Unit string

const DefaultUnit Unit = "piece"

// Units is the closed set of measuring units an item may use.
var Units = []Unit{
	"piece", "box", "pack", "set", "pair", "dozen",
	"kg", "g", "litre", "ml", "metre",
	"roll", "ream", "bottle", "carton",
}

func ValidUnit(u string) bool {
	for _, x := range Units {
		if string(x) == u {
			return true
		}
	}
	return false
}

// Deletion is set when an item has been soft deleted. Items are never
// physically removed.
type Deletion struct {
	By string    `json:"by"`
	At time.Time `json:"at"`
}

type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Unit        Unit      `json:"measuring_unit"`
	Quantity    int       `json:"quantity"`
	Description string    `json:"description"`
	Refundable  bool      `json:"refundable"`
	Status      Status    `json:"status"`
	Deleted     *Deletion `json:"deleted,omitempty"`
	AddedBy     string    `json:"added_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusFor derives status from quantity and deletion state.
func StatusFor(quantity int, deleted bool) Status {
	switch {
	case deleted:
		return StatusDeleted
	case quantity == 0:
		return StatusOut
	default:
		return StatusIn
	}
}

// ===== Detail =====

type ReleaseSummary struct {
	ID               string     `json:"id"`
	Quantity         int        `json:"quantity"`
	QtyReturned      int        `json:"qty_returned"`
	Recipient        string     `json:"recipient"`
	ReleasedBy       string     `json:"released_by"`
	ReleasedByName   string     `json:"released_by_name,omitempty"`
	Reason           string     `json:"reason"`
	Returnable       bool       `json:"returnable"`
	ExpectedReturnBy *time.Time `json:"expected_return_by,omitempty"`
	ApprovalStatus   string     `json:"approval_status"`
	ReturnStatus     string     `json:"return_status"`
	CreatedAt        time.Time  `json:"created_at"`
}

type ReturnSummary struct {
	ID         string    `json:"id"`
	ReleaseID  *string   `json:"release_id,omitempty"`
	ReturnedBy string    `json:"returned_by"`
	Quantity   int       `json:"quantity"`
	Condition  string    `json:"condition"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type Detail struct {
	Item
	AddedByName string           `json:"added_by_name,omitempty"`
	Releases    []ReleaseSummary `json:"releases"`
	Returns     []ReturnSummary  `json:"returns"`
}

// RefundableItem is a returnable item together with the returns booked
// against it.
type RefundableItem struct {
	Item
	Returns []ReturnSummary `json:"returns"`
}

// ===== Requests =====

type CreateRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Category    string `json:"category" binding:"required,max=255"`
	Unit        string `json:"measuring_unit" binding:"omitempty,measuring_unit"`
	Quantity    *int   `json:"quantity" binding:"required,min=0"`
	Description string `json:"description"`
	Refundable  bool   `json:"refundable"`
}

// EditRequest overwrites every editable field.
type EditRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Category    string `json:"category" binding:"required,max=255"`
	Unit        string `json:"measuring_unit" binding:"required,measuring_unit"`
	Quantity    *int   `json:"quantity" binding:"required,min=0"`
	Description string `json:"description"`
	Refundable  bool   `json:"refundable"`
}

type Filter struct {
	Category       *string
	Status         *Status
	Refundable     *bool
	Name           *string
	IncludeDeleted bool
}

type ListResult struct {
	Items      []Item `json:"items"`
	Total      int64  `json:"total"`
	NextOffset int    `json:"next_offset"`
}
