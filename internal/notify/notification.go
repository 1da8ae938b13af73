package notify

import (
	"encoding/json"
	"fmt"
	"time"
)

type Type string

const (
	TypeInfo               Type = "info"
	TypeLowStock           Type = "low_stock"
	TypeReturnOverdue      Type = "return_overdue"
	TypeReturnConfirmation Type = "return_confirmation"
	TypeRegistration       Type = "registration"
	TypeAddItem            Type = "add-item"
	TypeUpdateItem         Type = "update-item"
	TypeReleaseItem        Type = "release-item"
	TypeDeleteItem         Type = "delete-item"
	TypeRestock            Type = "restock"
)

// Notification is append-only apart from Read.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	ItemID    *string   `json:"item_id,omitempty"`
	ToUser    *string   `json:"to_user,omitempty"`
	Type      Type      `json:"type"`
	Meta      Meta      `json:"meta,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ===== Metadata =====

// Meta is the typed payload stored next to a notification. Each notification
// type has exactly one Meta implementation.
type Meta interface {
	Type() Type
}

type InfoMeta struct {
	ReleaseID string `json:"release_id,omitempty"`
	Approval  string `json:"approval,omitempty"`
	By        string `json:"by,omitempty"`
}

type LowStockMeta struct {
	ItemName  string `json:"item_name"`
	Category  string `json:"category"`
	Unit      string `json:"unit"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
	// Tier is set by the scheduled sweep only.
	Tier int `json:"tier,omitempty"`
}

type ReturnOverdueMeta struct {
	ReleaseID        string    `json:"release_id"`
	ItemName         string    `json:"item_name"`
	Recipient        string    `json:"recipient"`
	ExpectedReturnBy time.Time `json:"expected_return_by"`
	Outstanding      int       `json:"outstanding"`
}

type ReturnConfirmationMeta struct {
	ReturnID    string `json:"return_id"`
	ReleaseID   string `json:"release_id,omitempty"`
	ItemName    string `json:"item_name"`
	Quantity    int    `json:"quantity"`
	Condition   string `json:"condition"`
	ReturnedBy  string `json:"returned_by"`
	ProcessedBy string `json:"processed_by"`
}

type RegistrationMeta struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type AddItemMeta struct {
	ItemName   string `json:"item_name"`
	Category   string `json:"category"`
	Unit       string `json:"unit"`
	Quantity   int    `json:"quantity"`
	Refundable bool   `json:"refundable"`
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email,omitempty"`
}

type UpdateItemMeta struct {
	ItemName     string `json:"item_name"`
	Category     string `json:"category"`
	Unit         string `json:"unit"`
	PrevQuantity int    `json:"prev_quantity"`
	Quantity     int    `json:"quantity"`
	UserName     string `json:"user_name"`
}

type ReleaseItemMeta struct {
	ReleaseID        string     `json:"release_id"`
	ItemName         string     `json:"item_name"`
	Unit             string     `json:"unit"`
	Quantity         int        `json:"quantity"`
	Remaining        int        `json:"remaining"`
	Recipient        string     `json:"recipient"`
	Reason           string     `json:"reason,omitempty"`
	Returnable       bool       `json:"returnable"`
	ExpectedReturnBy *time.Time `json:"expected_return_by,omitempty"`
	UserName         string     `json:"user_name"`
}

type DeleteItemMeta struct {
	ItemName string `json:"item_name"`
	Category string `json:"category"`
	UserName string `json:"user_name"`
	Restored bool   `json:"restored,omitempty"`
}

type RestockMeta struct {
	ItemName  string `json:"item_name"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
	ReturnID  string `json:"return_id,omitempty"`
}

func (InfoMeta) Type() Type               { return TypeInfo }
func (LowStockMeta) Type() Type           { return TypeLowStock }
func (ReturnOverdueMeta) Type() Type      { return TypeReturnOverdue }
func (ReturnConfirmationMeta) Type() Type { return TypeReturnConfirmation }
func (RegistrationMeta) Type() Type       { return TypeRegistration }
func (AddItemMeta) Type() Type            { return TypeAddItem }
func (UpdateItemMeta) Type() Type         { return TypeUpdateItem }
func (ReleaseItemMeta) Type() Type        { return TypeReleaseItem }
func (DeleteItemMeta) Type() Type         { return TypeDeleteItem }
func (RestockMeta) Type() Type            { return TypeRestock }

// EncodeMeta returns nil for a nil meta.
func EncodeMeta(m Meta) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// DecodeMeta restores the concrete struct for t. Empty input yields nil.
func DecodeMeta(t Type, raw []byte) (Meta, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m Meta
	switch t {
	case TypeInfo:
		m = &InfoMeta{}
	case TypeLowStock:
		m = &LowStockMeta{}
	case TypeReturnOverdue:
		m = &ReturnOverdueMeta{}
	case TypeReturnConfirmation:
		m = &ReturnConfirmationMeta{}
	case TypeRegistration:
		m = &RegistrationMeta{}
	case TypeAddItem:
		m = &AddItemMeta{}
	case TypeUpdateItem:
		m = &UpdateItemMeta{}
	case TypeReleaseItem:
		m = &ReleaseItemMeta{}
	case TypeDeleteItem:
		m = &DeleteItemMeta{}
	case TypeRestock:
		m = &RestockMeta{}
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("decoding %s meta: %w", t, err)
	}
	return deref(m), nil
}

func deref(m Meta) Meta {
	switch v := m.(type) {
	case *InfoMeta:
		return *v
	case *LowStockMeta:
		return *v
	case *ReturnOverdueMeta:
		return *v
	case *ReturnConfirmationMeta:
		return *v
	case *RegistrationMeta:
		return *v
	case *AddItemMeta:
		return *v
	case *UpdateItemMeta:
		return *v
	case *ReleaseItemMeta:
		return *v
	case *DeleteItemMeta:
		return *v
	case *RestockMeta:
		return *v
	}
	return m
}
