package receipt

import (
	"encoding/json"
	"errors"
	"strings"
)

// Parse turns a model reply into raw items.
// The whole call fails with a *ParseError if any element is malformed.
func Parse(responseText string) ([]RawItem, error) {
	payload := ExtractPayload(responseText)

	var parsed any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, &ParseError{Index: -1, Reason: err.Error(), Response: responseText}
	}

	elements, ok := parsed.([]any)
	if !ok {
		return nil, &ParseError{Index: -1, Reason: "response is not an array", Response: responseText}
	}

	items := make([]RawItem, 0, len(elements))
	for i, element := range elements {
		item, err := normalizeRawItem(element)
		if err != nil {
			return nil, &ParseError{Index: i, Reason: err.Error(), Response: responseText}
		}
		items = append(items, item)
	}

	return items, nil
}

// normalizeRawItem validates and coerces one decoded JSON element
func normalizeRawItem(raw any) (RawItem, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return RawItem{}, errors.New("not an object")
	}

	name, ok := obj["name"].(string)
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return RawItem{}, errors.New("missing or invalid name field")
	}

	isAttachment, _ := obj["isAttachment"].(bool)
	attachmentType, _ := obj["attachmentType"].(string)

	// Attachments carry signed amounts; only substantive items must be non-negative
	price, ok := obj["price"].(float64)
	if !ok || (price < 0 && !isAttachment) {
		return RawItem{}, errors.New("missing or invalid price field")
	}

	quantity, ok := obj["quantity"].(float64)
	if !ok || quantity <= 0 {
		quantity = 1
	}

	var taxAmount *float64
	if v, ok := obj["taxAmount"].(float64); ok {
		taxAmount = &v
	}

	return RawItem{
		Item: Item{
			Name:              name,
			Price:             price,
			Quantity:          quantity,
			NeedsVerification: truthy(obj["needsVerification"]),
			HasTax:            truthy(obj["hasTax"]),
			TaxAmount:         taxAmount,
		},
		IsAttachment:   isAttachment,
		AttachmentType: AttachmentType(strings.ToLower(strings.TrimSpace(attachmentType))),
	}, nil
}

// truthy coerces a decoded JSON value to its boolean-ness
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
