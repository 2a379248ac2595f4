package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for line items
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator generates "<unix millis>-<random hex>" IDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// Finalize assigns IDs and UI defaults to pending items
func Finalize(items []Item) []LineItem {
	return finalize(&defaultIDGenerator{}, items)
}

func finalize(idGen IDGenerator, items []Item) []LineItem {
	lineItems := make([]LineItem, 0, len(items))
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		base := idGen.Generate()
		id := base
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		seen[id] = true

		lineItems = append(lineItems, LineItem{
			ID:        id,
			Item:      item.clone(),
			IsEditing: false,
		})
	}

	return lineItems
}
