package sync

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

type fakeEntry struct {
	item   RemoteItem
	folder bool
}

// fakeSource is an in-memory Source for testing.
type fakeSource struct {
	mu      sync.Mutex
	entries []fakeEntry
	content map[string]string
	openErr map[string]error
	listErr error
	opens   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		content: make(map[string]string),
		openErr: make(map[string]error),
	}
}

func (s *fakeSource) addFolder(id, name, parent string) *fakeSource {
	s.entries = append(s.entries, fakeEntry{item: RemoteItem{ID: id, Name: name, ParentID: parent}, folder: true})
	return s
}

func (s *fakeSource) addFile(id, name, parent, content string) *fakeSource {
	s.entries = append(s.entries, fakeEntry{item: RemoteItem{ID: id, Name: name, ParentID: parent, Size: int64(len(content))}})
	s.content[id] = content
	return s
}

func (s *fakeSource) List(_ context.Context, q Query) ([]RemoteItem, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []RemoteItem
	for _, e := range s.entries {
		if q.Kind == KindFolder && !e.folder || q.Kind == KindFile && e.folder {
			continue
		}
		if q.ParentID != "" && e.item.ParentID != q.ParentID {
			continue
		}
		out = append(out, e.item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeSource) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.opens = append(s.opens, id)
	s.mu.Unlock()

	if err := s.openErr[id]; err != nil {
		return nil, err
	}
	content, ok := s.content[id]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s *fakeSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opens)
}

// fakeDest is an in-memory Destination for testing.
type fakeDest struct {
	albums    []Album
	items     map[string][]MediaItem
	created   []string
	uploads   []string
	loginErr  error
	albumErr  error
	uploadErr map[string]error
	nilResult bool
	gate      chan struct{}
	entered   chan struct{}
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		items:     make(map[string][]MediaItem),
		uploadErr: make(map[string]error),
	}
}

func (d *fakeDest) withAlbum(title string, filenames ...string) *fakeDest {
	id := "album-" + title
	d.albums = append(d.albums, Album{ID: id, Title: title})
	for _, name := range filenames {
		d.items[id] = append(d.items[id], MediaItem{ID: name, Filename: name})
	}
	return d
}

func (d *fakeDest) Login(ctx context.Context) error {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return d.loginErr
}

func (d *fakeDest) ListAlbums(context.Context) ([]Album, error) {
	return d.albums, nil
}

func (d *fakeDest) AlbumByTitle(_ context.Context, title string) (*Album, error) {
	if d.albumErr != nil {
		return nil, d.albumErr
	}
	for _, a := range d.albums {
		if a.Title == title {
			return &a, nil
		}
	}
	return nil, nil
}

func (d *fakeDest) CreateAlbum(_ context.Context, title string) (*Album, error) {
	d.created = append(d.created, title)
	d.withAlbum(title)
	return &d.albums[len(d.albums)-1], nil
}

func (d *fakeDest) MediaItems(_ context.Context, albumID string) ([]MediaItem, error) {
	return d.items[albumID], nil
}

func (d *fakeDest) UploadSingle(_ context.Context, path, name, albumID string) (*UploadResult, error) {
	if err := d.uploadErr[name]; err != nil {
		return nil, err
	}
	d.uploads = append(d.uploads, name)
	if d.nilResult {
		return nil, nil
	}
	d.items[albumID] = append(d.items[albumID], MediaItem{ID: name, Filename: name})
	return &UploadResult{Filename: name, Status: UploadStatus{Code: 0, Status: "OK", Message: "Success"}}, nil
}

func (d *fakeDest) filenames(title string) []string {
	var names []string
	for _, item := range d.items["album-"+title] {
		names = append(names, item.Filename)
	}
	return names
}

func newTestStager(src Source) *Stager {
	s := NewStager(src, "/staging", 1)
	s.fs = afero.NewMemMapFs()
	return s
}

func newTestSyncer(t *testing.T, src Source, dst Destination, folder string) *Syncer {
	t.Helper()
	s := NewSyncer(src, dst, Options{MainFolder: folder, StagingDir: "/staging"})
	s.stager.fs = afero.NewMemMapFs()
	return s
}

func itemNames(items []RemoteItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}
