package shopping

import (
	"errors"
	"fmt"
)

var (
	// ErrIndex is returned for an item index outside the list.
	ErrIndex = errors.New("shopping item out of range")
	// ErrNoName is returned when adding an item without a name.
	ErrNoName = errors.New("shopping item name is required")
)

// Reconcile carries checked state from a previous list onto a freshly generated one.
//
// A nil previous list means no plan existed before and fresh is returned as is.
// Otherwise every item of fresh is checked only when an item with the same key was
// checked in previous; when previous holds duplicate keys the last one wins. The result
// keeps fresh's order and length, and items that only existed in previous are dropped.
func Reconcile(fresh, previous []Item) []Item {
	if previous == nil {
		return fresh
	}

	checked := make(map[Key]bool, len(previous))
	for _, it := range previous {
		checked[it.Key()] = it.IsChecked
	}

	out := make([]Item, len(fresh))
	for i, it := range fresh {
		it.IsChecked = checked[it.Key()]
		out[i] = it
	}
	return out
}

// Add appends an unchecked item to a copy of list.
func Add(list []Item, item Item) ([]Item, error) {
	if item.Item == "" {
		return nil, ErrNoName
	}
	item.IsChecked = false
	out := make([]Item, 0, len(list)+1)
	out = append(out, list...)
	return append(out, item), nil
}

// Remove returns a copy of list without the item at index.
func Remove(list []Item, index int) ([]Item, error) {
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("%w: %d (list has %d items)", ErrIndex, index, len(list))
	}
	out := make([]Item, 0, len(list)-1)
	out = append(out, list[:index]...)
	return append(out, list[index+1:]...), nil
}

// Toggle returns a copy of list with the checked state of the item at index flipped.
func Toggle(list []Item, index int) ([]Item, error) {
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("%w: %d (list has %d items)", ErrIndex, index, len(list))
	}
	out := make([]Item, len(list))
	copy(out, list)
	out[index].IsChecked = !out[index].IsChecked
	return out, nil
}

// GroupByCategory groups items by category in order of first appearance.
func GroupByCategory(list []Item) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, it := range list {
		category := it.Category
		if category == "" {
			category = "Other"
		}
		i, ok := index[category]
		if !ok {
			i = len(groups)
			index[category] = i
			groups = append(groups, Group{Category: category})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}
