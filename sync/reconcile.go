package sync

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// MissingSet maps a folder label to the items that still have to be
// transferred. Folders with nothing to transfer have no key.
type MissingSet map[string][]RemoteItem

// Labels returns the folder labels in a stable order, root first.
func (m MissingSet) Labels() []string {
	return sortedLabels(m)
}

// Count returns the number of missing items across all folders.
func (m MissingSet) Count() int {
	return Inventory(m).Count()
}

// ComputeMissing returns the items of src whose normalized name is not in
// present. Item order within a folder is kept.
func ComputeMissing(src Inventory, present mapset.Set[string]) MissingSet {
	missing := MissingSet{}
	if present == nil {
		present = mapset.NewThreadUnsafeSet[string]()
	}
	for label, items := range src {
		if len(items) == 0 {
			continue
		}

		var todo []RemoteItem
		for _, item := range items {
			if !present.Contains(Normalize(item.Name, label)) {
				todo = append(todo, item)
			}
		}
		if len(todo) > 0 {
			missing[label] = todo
		}
	}
	return missing
}
