package returns

import "time"

type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
	ConditionExpired Condition = "expired"
	ConditionLost    Condition = "lost"
	ConditionOther   Condition = "other"
)

func ValidCondition(c string) bool {
	switch Condition(c) {
	case ConditionGood, ConditionDamaged, ConditionExpired, ConditionLost, ConditionOther:
		return true
	}
	return false
}

type Status string

const (
	StatusProcessed     Status = "processed"
	StatusPendingReview Status = "pending_review"
	StatusArchived      Status = "archived"
)

// Return is stock that came back. Deleting a return archives it; the
// restock it caused stays.
type Return struct {
	ID              string    `json:"id"`
	ItemID          string    `json:"item_id"`
	ItemName        string    `json:"item_name,omitempty"`
	ReleaseID       *string   `json:"release_id,omitempty"`
	ReturnedBy      string    `json:"returned_by"`
	ReturnedByEmail string    `json:"returned_by_email,omitempty"`
	Quantity        int       `json:"quantity"`
	Condition       Condition `json:"condition"`
	Remarks         string    `json:"remarks"`
	ProcessedBy     string    `json:"processed_by"`
	ProcessedByName string    `json:"processed_by_name,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ===== Requests =====

// ItemReturnRequest is the body of POST /items/:id/return.
type ItemReturnRequest struct {
	ReleaseID       *string `json:"release_id,omitempty"`
	ReturnedBy      string  `json:"returned_by" binding:"required,max=255"`
	ReturnedByEmail string  `json:"returned_by_email" binding:"omitempty,email"`
	Quantity        int     `json:"quantity" binding:"required,gt=0"`
	Condition       string  `json:"condition" binding:"omitempty,oneof=good damaged expired lost other"`
	Remarks         string  `json:"remarks"`
}

// CreateRequest is the body of POST /returns.
type CreateRequest struct {
	ItemID string `json:"item_id" binding:"required"`
	ItemReturnRequest
}

type UpdateRequest struct {
	Condition *string `json:"condition,omitempty" binding:"omitempty,oneof=good damaged expired lost other"`
	Remarks   *string `json:"remarks,omitempty"`
	Status    *string `json:"status,omitempty" binding:"omitempty,oneof=processed pending_review archived"`
}

type Filter struct {
	ItemID    *string
	ReleaseID *string
	Condition *Condition
	Status    *Status
	// Archived returns are hidden unless asked for or filtered by status.
	IncludeArchived bool
}

type ListResult struct {
	Items      []Return `json:"items"`
	Total      int64    `json:"total"`
	NextOffset int      `json:"next_offset"`
}
