package receipt

// AttachmentType names the kind of adjustment an attachment record carries
type AttachmentType string

const (
	AttachmentDeposit  AttachmentType = "deposit"
	AttachmentDiscount AttachmentType = "discount"
)

// Item is a line item before finalization
type Item struct {
	Name              string   `json:"name"`
	Price             float64  `json:"price"`
	Quantity          float64  `json:"quantity"`
	NeedsVerification bool     `json:"needsVerification"`
	HasTax            bool     `json:"hasTax"`
	TaxAmount         *float64 `json:"taxAmount,omitempty"`
	Deposit           *float64 `json:"deposit,omitempty"`  // positive charge, negative refund
	Discount          *float64 `json:"discount,omitempty"` // conventionally negative
}

// clone returns a copy that shares no pointers with the original
func (i Item) clone() Item {
	i.TaxAmount = clonePtr(i.TaxAmount)
	i.Deposit = clonePtr(i.Deposit)
	i.Discount = clonePtr(i.Discount)
	return i
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}

// RawItem is one normalized element of the model's reply.
// The attachment fields are consumed by MergeAttachments and never reach a LineItem.
type RawItem struct {
	Item
	IsAttachment   bool
	AttachmentType AttachmentType
}

// LineItem is a finalized receipt line item
type LineItem struct {
	ID string `json:"id"`
	Item
	IsEditing bool `json:"isEditing"` // owned by the UI after finalization
}
