// Package drive reads folders and files from Google Drive.
package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sandeepkandula/drivesync/sync"
)

const (
	FolderMimeType = "application/vnd.google-apps.folder"
	// Docs, Sheets and other native types have no binary content to download.
	nativeMimePrefix = "application/vnd.google-apps."
	ReadonlyScope  = gdrive.DriveReadonlyScope

	listFields = "nextPageToken, files(id, name, mimeType, parents, size)"
	pageSize   = 1000
)

// Client lists and downloads Drive files. Every API call waits on a shared
// rate limiter to stay under the per-user quota.
type Client struct {
	svc     *gdrive.Service
	limiter *rate.Limiter
}

var _ sync.Source = (*Client)(nil)

// New creates a Client authorized by ts, limited to rps calls per second.
func New(ctx context.Context, ts oauth2.TokenSource, rps float64, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return NewClient(svc, rps), nil
}

func NewClient(svc *gdrive.Service, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{svc: svc, limiter: rate.NewLimiter(limit, 1)}
}

func (c *Client) List(ctx context.Context, q sync.Query) ([]sync.RemoteItem, error) {
	call := c.svc.Files.List().
		Q(buildQuery(q)).
		OrderBy("name").
		PageSize(pageSize).
		Fields(listFields)

	var items []sync.RemoteItem
	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := call.PageToken(pageToken).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("drive list: %w", err)
		}
		for _, f := range page.Files {
			if q.Kind == sync.KindFile && strings.HasPrefix(f.MimeType, nativeMimePrefix) {
				slog.Debug("skipping native Google file", "name", f.Name, "mimeType", f.MimeType)
				continue
			}
			items = append(items, toRemoteItem(f))
		}
		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive download %s: %w", id, err)
	}
	return resp.Body, nil
}

func toRemoteItem(f *gdrive.File) sync.RemoteItem {
	item := sync.RemoteItem{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	}
	if len(f.Parents) > 0 {
		item.ParentID = f.Parents[0]
	}
	return item
}

// buildQuery translates q into the Drive search syntax. Trashed files are
// always excluded.
func buildQuery(q sync.Query) string {
	parts := []string{"trashed = false"}

	switch q.Kind {
	case sync.KindFolder:
		parts = append(parts, fmt.Sprintf("mimeType = '%s'", FolderMimeType))
	case sync.KindFile:
		parts = append(parts, fmt.Sprintf("mimeType != '%s'", FolderMimeType))
	}

	if q.ParentID != "" {
		parts = append(parts, fmt.Sprintf("'%s' in parents", escape(q.ParentID)))
	}

	if len(q.MimeTypes) > 0 {
		types := make([]string, 0, len(q.MimeTypes))
		for _, mt := range q.MimeTypes {
			types = append(types, fmt.Sprintf("mimeType = '%s'", escape(mt)))
		}
		parts = append(parts, "("+strings.Join(types, " or ")+")")
	}

	return strings.Join(parts, " and ")
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
