package sync

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// RemoteItem is a snapshot of a source entry as returned by a listing.
type RemoteItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Kind restricts a listing to folders, to files, or neither.
type Kind int

const (
	KindAny Kind = iota
	KindFolder
	KindFile
)

// Query selects source entries. Zero values mean "no restriction".
type Query struct {
	ParentID  string
	Kind      Kind
	MimeTypes []string
}

// Source is a read-only folder tree the items are pulled from.
type Source interface {
	// List returns the entries matching q, sorted by name.
	List(ctx context.Context, q Query) ([]RemoteItem, error)
	// Open returns the content of a file entry.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// Inventory maps a folder label to the items directly inside that folder.
// Items under the root folder itself are stored under the empty label.
type Inventory map[string][]RemoteItem

// Labels returns the folder labels in a stable order, root first.
func (inv Inventory) Labels() []string {
	return sortedLabels(inv)
}

// Count returns the total number of items across all folders.
func (inv Inventory) Count() int {
	n := 0
	for _, items := range inv {
		n += len(items)
	}
	return n
}

func sortedLabels[T any](m map[string]T) []string {
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// BuildSourceInventory finds the folder called root and collects its files
// and the files of its direct sub-folders. Deeper nesting is not followed.
//
// When no folder is called root an empty inventory is returned together with
// an error wrapping ErrNotFound. If several folders share the name, the first
// one returned by the source wins.
func BuildSourceInventory(ctx context.Context, src Source, root string, log *RunLog) (Inventory, error) {
	inv := Inventory{}

	log.Infof("Getting folders from source")
	folders, err := src.List(ctx, Query{Kind: KindFolder})
	if err != nil {
		log.Errorf("Listing folders failed: %v", err)
		return inv, sourceErr("list folders", err)
	}

	log.Infof("Finding the main folder of '%s'", root)
	var parent *RemoteItem
	for i := range folders {
		if folders[i].Name == root {
			parent = &folders[i]
			break
		}
	}
	if parent == nil {
		log.Infof("%s folder was not found, returning empty list.", root)
		return inv, fmt.Errorf("folder %q: %w", root, ErrNotFound)
	}

	log.Infof("Getting files from the folder: '%s'", root)
	files, err := src.List(ctx, Query{ParentID: parent.ID, Kind: KindFile})
	if err != nil {
		log.Errorf("Listing files in %s failed: %v", root, err)
		return inv, sourceErr("list files", err)
	}
	inv[""] = files
	log.Infof("Found %d files in %s folder", len(files), root)

	subfolders, err := src.List(ctx, Query{ParentID: parent.ID, Kind: KindFolder})
	if err != nil {
		log.Errorf("Listing sub-folders of %s failed: %v", root, err)
		return inv, sourceErr("list folders", err)
	}
	for _, folder := range subfolders {
		files, err := src.List(ctx, Query{ParentID: folder.ID, Kind: KindFile})
		if err != nil {
			log.Errorf("Listing files in %s failed: %v", folder.Name, err)
			return inv, sourceErr("list files", err)
		}
		// same-named sub-folders share a label
		inv[folder.Name] = append(inv[folder.Name], files...)
		log.Infof("Found %d files in %s folder", len(files), folder.Name)
	}

	return inv, nil
}
