// Package photos writes into Google Photos albums through the Photos Library
// REST API.
package photos

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/imroc/req/v3"
	"golang.org/x/oauth2"

	"github.com/sandeepkandula/drivesync/sync"
)

const (
	DefaultBaseURL = "https://photoslibrary.googleapis.com"

	AppendOnlyScope         = "https://www.googleapis.com/auth/photoslibrary.appendonly"
	ReadonlyAppCreatedScope = "https://www.googleapis.com/auth/photoslibrary.readonly.appcreateddata"

	v1Albums           = "/v1/albums"
	v1MediaItemsSearch = "/v1/mediaItems:search"
	v1Uploads          = "/v1/uploads"
	v1BatchCreate      = "/v1/mediaItems:batchCreate"

	albumsPageSize = 50
	itemsPageSize  = 100
)

var ErrNotLoggedIn = errors.New("photos: not logged in")

// TokenSourcer hands out the OAuth2 token source of the shared session.
type TokenSourcer interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// Client is a Photos Library destination.
type Client struct {
	client  *req.Client
	session TokenSourcer

	mu gosync.RWMutex
	ts oauth2.TokenSource
}

var _ sync.Destination = (*Client)(nil)

func New(session TokenSourcer, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{session: session}
	c.client = req.C().
		SetBaseURL(baseURL).
		SetUserAgent("drivesync").
		SetTimeout(5 * time.Minute).
		SetCommonErrorResult(&errorEnvelope{}).
		OnBeforeRequest(c.authorize)
	return c
}

func (c *Client) authorize(_ *req.Client, r *req.Request) error {
	c.mu.RLock()
	ts := c.ts
	c.mu.RUnlock()
	if ts == nil {
		return ErrNotLoggedIn
	}

	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("photos token: %w", err)
	}
	r.SetBearerAuthToken(tok.AccessToken)
	return nil
}

func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ts != nil {
		return nil
	}

	ts, err := c.session.TokenSource(ctx)
	if err != nil {
		return fmt.Errorf("photos login: %w", err)
	}
	c.ts = ts
	return nil
}

func (c *Client) ListAlbums(ctx context.Context) ([]sync.Album, error) {
	var albums []sync.Album
	pageToken := ""
	for {
		var out listAlbumsResponse
		r := c.client.R().
			SetContext(ctx).
			SetQueryParam("pageSize", fmt.Sprint(albumsPageSize)).
			SetSuccessResult(&out)
		if pageToken != "" {
			r.SetQueryParam("pageToken", pageToken)
		}

		resp, err := r.Get(v1Albums)
		if err := handleAPIError(resp, err, "list albums"); err != nil {
			return nil, err
		}
		for _, a := range out.Albums {
			albums = append(albums, sync.Album{ID: a.ID, Title: a.Title})
		}
		if out.NextPageToken == "" {
			return albums, nil
		}
		pageToken = out.NextPageToken
	}
}

// AlbumByTitle scans the album list; the API has no lookup by title.
func (c *Client) AlbumByTitle(ctx context.Context, title string) (*sync.Album, error) {
	albums, err := c.ListAlbums(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range albums {
		if a.Title == title {
			return &a, nil
		}
	}
	return nil, nil
}

func (c *Client) CreateAlbum(ctx context.Context, title string) (*sync.Album, error) {
	var out album
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&createAlbumRequest{Album: album{Title: title}}).
		SetSuccessResult(&out).
		Post(v1Albums)
	if err := handleAPIError(resp, err, "create album"); err != nil {
		return nil, err
	}
	return &sync.Album{ID: out.ID, Title: out.Title}, nil
}

func (c *Client) MediaItems(ctx context.Context, albumID string) ([]sync.MediaItem, error) {
	var items []sync.MediaItem
	body := searchRequest{AlbumID: albumID, PageSize: itemsPageSize}
	for {
		var out searchResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(&body).
			SetSuccessResult(&out).
			Post(v1MediaItemsSearch)
		if err := handleAPIError(resp, err, "search media items"); err != nil {
			return nil, err
		}
		for _, m := range out.MediaItems {
			items = append(items, sync.MediaItem{ID: m.ID, Filename: m.Filename})
		}
		if out.NextPageToken == "" {
			return items, nil
		}
		body.PageToken = out.NextPageToken
	}
}

// UploadSingle uploads the raw bytes of path, then creates a media item
// called name from the upload token inside the album.
func (c *Client) UploadSingle(ctx context.Context, path, name, albumID string) (*sync.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("X-Goog-Upload-Content-Type", contentType).
		SetHeader("X-Goog-Upload-File-Name", name).
		SetHeader("X-Goog-Upload-Protocol", "raw").
		SetBody(f).
		Post(v1Uploads)
	if err := handleAPIError(resp, err, "upload bytes"); err != nil {
		return nil, err
	}
	token := resp.String()
	if token == "" {
		return nil, fmt.Errorf("upload bytes %s: empty upload token", name)
	}

	var out batchCreateResponse
	resp, err = c.client.R().
		SetContext(ctx).
		SetBody(&batchCreateRequest{
			AlbumID: albumID,
			NewMediaItems: []newMediaItem{{
				SimpleMediaItem: simpleMediaItem{FileName: name, UploadToken: token},
			}},
		}).
		SetSuccessResult(&out).
		Post(v1BatchCreate)
	if err := handleAPIError(resp, err, "create media item"); err != nil {
		return nil, err
	}
	if len(out.NewMediaItemResults) == 0 {
		return nil, nil
	}

	result := out.NewMediaItemResults[0]
	if result.Status.Code != 0 {
		return nil, &APIError{Code: result.Status.Code, Message: result.Status.Message, Status: "MEDIA_ITEM_REJECTED"}
	}
	return &sync.UploadResult{
		Filename: name,
		Status: sync.UploadStatus{
			Code:    result.Status.Code,
			Status:  resp.Status,
			Message: result.Status.Message,
		},
	}, nil
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("%s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if env, ok := resp.ErrorResult().(*errorEnvelope); ok && env.Error != nil {
			return fmt.Errorf("%s: %w", operation, env.Error)
		}
		return fmt.Errorf("%s: unexpected status %s", operation, resp.Status)
	}

	return nil
}
