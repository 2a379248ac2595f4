package scanning

import (
	"fmt"
	"strings"
)

// ExtractionPrompt asks the model for every line item on a receipt as a JSON array
const ExtractionPrompt = `You are analyzing a photograph of a retail receipt. Carefully read all text in the image and extract every purchased line item.

Return a JSON array. Each element describes one line and has these fields:
- name: product name exactly as printed (string)
- price: unit price (number)
- quantity: quantity purchased (number, default 1)
- needsVerification: true if the name is abbreviated, truncated, incomplete or ambiguous; false if it is clear and complete (boolean)
- hasTax: whether the item is taxed (boolean)
- taxAmount: the tax charged for this item, if printed (number, optional)

Rules for needsVerification:
- Do not guess uncertain names. Keep the name as printed and set needsVerification to true.
- Set needsVerification to false only when the name is clear and complete.

**Important: deposits and discounts**
Deposit lines (Deposit, DEP, bottle deposit, ...) and discount lines (TPD, instant savings, coupon, discount, ...) modify a product instead of standing alone:
- add the field isAttachment: true
- add the field attachmentType: "deposit" or "discount"
- place the line immediately after the product it belongs to
- a deposit refund is a negative deposit price; a discount price is negative

Ordering:
- Product A
- Product A deposit (if any)
- Product A discount (if any)
- Product B
- Product B deposit (if any)
- ...

Return ONLY the JSON array, with no text before or after it.

Example output:
[
  {"name": "Organic Milk 1L", "price": 12.5, "quantity": 1, "needsVerification": false, "hasTax": false},
  {"name": "Coca-Cola Bottle", "price": 3.5, "quantity": 2, "needsVerification": false, "hasTax": true, "taxAmount": 0.35},
  {"name": "Deposit VL", "price": 0.5, "quantity": 2, "needsVerification": false, "hasTax": false, "isAttachment": true, "attachmentType": "deposit"},
  {"name": "TPD", "price": -0.5, "quantity": 1, "needsVerification": false, "hasTax": false, "isAttachment": true, "attachmentType": "discount"},
  {"name": "ORG BRD", "price": 8.0, "quantity": 1, "needsVerification": true, "hasTax": true, "taxAmount": 0.8}
]`

// VerificationPrompt asks a search-grounded model to resolve abbreviated product names.
// Names are numbered from 1 in the order given.
func VerificationPrompt(names []string) string {
	var list strings.Builder
	for i, name := range names {
		fmt.Fprintf(&list, "%d. %q\n", i+1, name)
	}

	return fmt.Sprintf(`These product names were read from a retail store receipt. Some of them are abbreviated or incomplete.
Use Google Search to find the complete, correct product name for each one.

Names to verify:
%s
How to search:
- search for the name as printed together with the store name when it is known (for example "CEMOI 6X Costco")
- confirm the package size (count, volume, weight) matches

Return a JSON array with one element per name:
- index: the number of the name in the list above (1-based)
- originalName: the name exactly as given above
- verifiedName: the complete product name, if found
- found: whether a match was found (boolean)

Example output:
[
  {"index": 1, "originalName": "ORG MLK", "verifiedName": "Kirkland Signature Organic 2%% Milk 1L", "found": true},
  {"index": 2, "originalName": "CEMOI 6X", "verifiedName": "CEMOI 82%% Dark Chocolate Bars, 6 x 100 g", "found": true}
]

Return ONLY the JSON array, with no other text.`, list.String())
}
