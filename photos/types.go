package photos

import "fmt"

// APIError is the error body returned by the Photos Library API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("photos api error: %d %s - %s", e.Code, e.Status, e.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

type album struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	MediaItemsCount string `json:"mediaItemsCount,omitempty"`
}

type listAlbumsResponse struct {
	Albums        []album `json:"albums"`
	NextPageToken string  `json:"nextPageToken"`
}

type createAlbumRequest struct {
	Album album `json:"album"`
}

type searchRequest struct {
	AlbumID   string `json:"albumId"`
	PageSize  int    `json:"pageSize"`
	PageToken string `json:"pageToken,omitempty"`
}

type mediaItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type searchResponse struct {
	MediaItems    []mediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken"`
}

type simpleMediaItem struct {
	FileName    string `json:"fileName"`
	UploadToken string `json:"uploadToken"`
}

type newMediaItem struct {
	SimpleMediaItem simpleMediaItem `json:"simpleMediaItem"`
}

type batchCreateRequest struct {
	AlbumID       string         `json:"albumId"`
	NewMediaItems []newMediaItem `json:"newMediaItems"`
}

type rpcStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type newMediaItemResult struct {
	UploadToken string     `json:"uploadToken"`
	Status      rpcStatus  `json:"status"`
	MediaItem   *mediaItem `json:"mediaItem,omitempty"`
}

type batchCreateResponse struct {
	NewMediaItemResults []newMediaItemResult `json:"newMediaItemResults"`
}
