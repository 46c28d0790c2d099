package photos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type staticSession struct {
	err   error
	calls int
}

func (s *staticSession) TokenSource(context.Context) (oauth2.TokenSource, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), nil
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(&staticSession{}, srv.URL)
	require.NoError(t, c.Login(context.Background()))
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestClient_requiresLogin(t *testing.T) {
	c := New(&staticSession{}, "http://127.0.0.1:0")

	_, err := c.ListAlbums(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestClient_Login(t *testing.T) {
	session := &staticSession{}
	c := New(session, "")

	require.NoError(t, c.Login(context.Background()))
	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, 1, session.calls)
}

func TestClient_Login_error(t *testing.T) {
	boom := errors.New("no consent")
	c := New(&staticSession{err: boom}, "")

	err := c.Login(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestClient_ListAlbums(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/albums", r.URL.Path)
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, listAlbumsResponse{Albums: []album{{ID: "1", Title: "Trip"}}, NextPageToken: "p2"})
		case "p2":
			writeJSON(w, listAlbumsResponse{Albums: []album{{ID: "2", Title: "Family"}}})
		}
	})

	albums, err := c.ListAlbums(context.Background())
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, "Trip", albums[0].Title)
	assert.Equal(t, "2", albums[1].ID)
}

func TestClient_AlbumByTitle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listAlbumsResponse{Albums: []album{{ID: "1", Title: "Trip"}, {ID: "2", Title: "Family"}}})
	})

	a, err := c.AlbumByTitle(context.Background(), "Family")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "2", a.ID)

	a, err = c.AlbumByTitle(context.Background(), "Nope")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestClient_CreateAlbum(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body createAlbumRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Trip", body.Album.Title)
		writeJSON(w, album{ID: "new", Title: body.Album.Title})
	})

	a, err := c.CreateAlbum(context.Background(), "Trip")
	require.NoError(t, err)
	assert.Equal(t, "new", a.ID)
	assert.Equal(t, "Trip", a.Title)
}

func TestClient_MediaItems(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/mediaItems:search", r.URL.Path)
		var body searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alb", body.AlbumID)
		switch body.PageToken {
		case "":
			writeJSON(w, searchResponse{MediaItems: []mediaItem{{ID: "m1", Filename: "a.jpg"}}, NextPageToken: "p2"})
		case "p2":
			writeJSON(w, searchResponse{MediaItems: []mediaItem{{ID: "m2", Filename: "b.jpg"}}})
		}
	})

	items, err := c.MediaItems(context.Background(), "alb")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.jpg", items[0].Filename)
	assert.Equal(t, "b.jpg", items[1].Filename)
}

func TestClient_apiError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"insufficient scopes","status":"PERMISSION_DENIED"}}`))
	})

	_, err := c.ListAlbums(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Status)
}

func writeStaged(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClient_UploadSingle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/uploads":
			assert.Equal(t, "raw", r.Header.Get("X-Goog-Upload-Protocol"))
			assert.Equal(t, "Trip-a.jpg", r.Header.Get("X-Goog-Upload-File-Name"))
			assert.Equal(t, "image/jpeg", r.Header.Get("X-Goog-Upload-Content-Type"))
			b, _ := io.ReadAll(r.Body)
			assert.Equal(t, "jpeg bytes", string(b))
			w.Write([]byte("upload-token"))
		case "/v1/mediaItems:batchCreate":
			var body batchCreateRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "alb", body.AlbumID)
			if assert.Len(t, body.NewMediaItems, 1) {
				assert.Equal(t, "upload-token", body.NewMediaItems[0].SimpleMediaItem.UploadToken)
				assert.Equal(t, "Trip-a.jpg", body.NewMediaItems[0].SimpleMediaItem.FileName)
			}
			writeJSON(w, batchCreateResponse{NewMediaItemResults: []newMediaItemResult{{
				UploadToken: "upload-token",
				Status:      rpcStatus{Message: "Success"},
				MediaItem:   &mediaItem{ID: "m1", Filename: "Trip-a.jpg"},
			}}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	res, err := c.UploadSingle(context.Background(), writeStaged(t, "Trip-a.jpg", "jpeg bytes"), "Trip-a.jpg", "alb")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Trip-a.jpg", res.Filename)
	assert.Equal(t, 0, res.Status.Code)
	assert.Equal(t, "Success", res.Status.Message)
	assert.Contains(t, res.Status.Status, "200")
}

func TestClient_UploadSingle_rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/uploads" {
			w.Write([]byte("upload-token"))
			return
		}
		writeJSON(w, batchCreateResponse{NewMediaItemResults: []newMediaItemResult{{
			Status: rpcStatus{Code: 3, Message: "invalid media"},
		}}})
	})

	_, err := c.UploadSingle(context.Background(), writeStaged(t, "a.jpg", "x"), "a.jpg", "alb")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 3, apiErr.Code)
}

func TestClient_UploadSingle_noResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/uploads" {
			w.Write([]byte("upload-token"))
			return
		}
		writeJSON(w, batchCreateResponse{})
	})

	res, err := c.UploadSingle(context.Background(), writeStaged(t, "a.jpg", "x"), "a.jpg", "alb")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestClient_UploadSingle_missingFile(t *testing.T) {
	c := New(&staticSession{}, "http://127.0.0.1:0")

	_, err := c.UploadSingle(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"), "gone.jpg", "alb")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClient_UploadSingle_nameIsNotThePath(t *testing.T) {
	var sent []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/uploads" {
			sent = append(sent, r.Header.Get("X-Goog-Upload-File-Name"))
			w.Write([]byte("upload-token"))
			return
		}
		var body batchCreateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.NewMediaItems, 1) {
			sent = append(sent, body.NewMediaItems[0].SimpleMediaItem.FileName)
		}
		writeJSON(w, batchCreateResponse{NewMediaItemResults: []newMediaItemResult{{Status: rpcStatus{Message: "Success"}}}})
	})

	res, err := c.UploadSingle(context.Background(), writeStaged(t, "..%2Fx.jpg", "x"), "../x.jpg", "alb")
	require.NoError(t, err)
	assert.Equal(t, "../x.jpg", res.Filename)
	assert.Equal(t, []string{"../x.jpg", "../x.jpg"}, sent)
}
