package sync

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
)

// Album is a flat destination collection.
type Album struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MediaItem is an item already stored in an album.
type MediaItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// UploadStatus is what the destination reported for a single upload.
type UploadStatus struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UploadResult reports the stored filename and the destination's status.
type UploadResult struct {
	Filename string       `json:"filename"`
	Status   UploadStatus `json:"status"`
}

// Destination is a write target holding albums of media items.
type Destination interface {
	// Login establishes the session. It is cheap once logged in.
	Login(ctx context.Context) error
	// ListAlbums returns all albums visible to the session.
	ListAlbums(ctx context.Context) ([]Album, error)
	// AlbumByTitle returns the first album with exactly this title, or (nil, nil) if absent.
	AlbumByTitle(ctx context.Context, title string) (*Album, error)
	// CreateAlbum creates an album with the given title.
	CreateAlbum(ctx context.Context, title string) (*Album, error)
	// MediaItems returns every item in an album.
	MediaItems(ctx context.Context, albumID string) ([]MediaItem, error)
	// UploadSingle stores the local file at path in an album under name. A nil result
	// with a nil error means the destination had nothing to report.
	UploadSingle(ctx context.Context, path, name, albumID string) (*UploadResult, error)
}

// ListDestinationItemNames returns the filenames already present in the
// album called title. A missing album yields an empty set; it is not created
// here.
func ListDestinationItemNames(ctx context.Context, dst Destination, title string, log *RunLog) (mapset.Set[string], error) {
	names := mapset.NewThreadUnsafeSet[string]()

	log.Infof("Logging in to destination")
	if err := dst.Login(ctx); err != nil {
		log.Errorf("Login failed: %v", err)
		return names, destErr("login", err)
	}

	log.Infof("Getting album '%s'", title)
	album, err := dst.AlbumByTitle(ctx, title)
	if err != nil {
		log.Errorf("Looking up album '%s' failed: %v", title, err)
		return names, destErr("get album", err)
	}
	if album == nil {
		log.Infof("Album '%s' does not exist yet", title)
		return names, nil
	}

	log.Infof("Getting files in album '%s'", title)
	items, err := dst.MediaItems(ctx, album.ID)
	if err != nil {
		log.Errorf("Could not list media items in album: %s: %v", album.Title, err)
		return names, destErr("list media items", err)
	}
	for _, item := range items {
		names.Add(item.Filename)
	}
	log.Infof("Found %d files in album '%s'", names.Cardinality(), title)
	return names, nil
}

// resolveAlbum returns the album called title, creating it when absent.
func resolveAlbum(ctx context.Context, dst Destination, title string, log *RunLog) (*Album, error) {
	log.Infof("Getting Album folder for '%s'.", title)
	album, err := dst.AlbumByTitle(ctx, title)
	if err != nil {
		return nil, destErr("get album", err)
	}
	if album != nil {
		return album, nil
	}

	log.Warnf("Could not find album '%s', creating a new album.", title)
	album, err = dst.CreateAlbum(ctx, title)
	if err != nil {
		return nil, destErr("create album", err)
	}
	return album, nil
}
