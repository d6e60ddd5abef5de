package shopping

// Item is a single line of a consolidated shopping list.
type Item struct {
	Item      string `json:"item"`
	Quantity  string `json:"quantity"`
	Category  string `json:"category"`
	IsChecked bool   `json:"isChecked"`
}

// Key identifies an item across regenerations. Matching is exact and case-sensitive.
type Key struct {
	Item     string
	Quantity string
	Category string
}

// Key returns the identity key of the item.
func (i Item) Key() Key {
	return Key{Item: i.Item, Quantity: i.Quantity, Category: i.Category}
}

// Group is a run of items sharing a category.
type Group struct {
	Category string
	Items    []Item
}
