package receipt

import (
	"log/slog"

	"github.com/shopspring/decimal"
)

// MergeAttachments folds deposit and discount records into the item immediately before them.
// Attachment prices are summed as given, without scaling by the attachment's quantity.
// Attachments with no preceding item or an unknown type are skipped and logged.
func MergeAttachments(raw []RawItem) []Item {
	items := make([]Item, 0, len(raw))
	base := -1

	for i, r := range raw {
		if !r.IsAttachment {
			items = append(items, r.Item.clone())
			base = len(items) - 1
			continue
		}

		if base < 0 {
			slog.Warn("Skipping attachment with no preceding item",
				"index", i,
				"name", r.Name,
				"attachment_type", r.AttachmentType,
			)
			continue
		}

		target := &items[base]
		switch r.AttachmentType {
		case AttachmentDeposit:
			target.Deposit = addAmount(target.Deposit, r.Price)
		case AttachmentDiscount:
			target.Discount = addAmount(target.Discount, r.Price)
		default:
			slog.Warn("Skipping attachment with unknown type",
				"index", i,
				"name", r.Name,
				"attachment_type", r.AttachmentType,
			)
		}
	}

	return items
}

// addAmount adds amount to an optional running total
func addAmount(current *float64, amount float64) *float64 {
	sum := decimal.NewFromFloat(amount)
	if current != nil {
		sum = sum.Add(decimal.NewFromFloat(*current))
	}
	v := sum.InexactFloat64()
	return &v
}
