package sync

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weddingSource() *fakeSource {
	return newFakeSource().
		addFolder("root", "Wedding", "").
		addFile("a", "a.jpg", "root", "aaa").
		addFolder("cer", "Ceremony", "root").
		addFile("b", "b.jpg", "cer", "bbb")
}

func TestSync_missingFolderItemIsTransferred(t *testing.T) {
	src := weddingSource()
	dst := newFakeDest().withAlbum("Wedding", "a.jpg")
	s := newTestSyncer(t, src, dst, "Wedding")

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"Ceremony"}, res.Missing.Labels())
	assert.Equal(t, []string{"b.jpg"}, itemNames(res.Missing["Ceremony"]))

	require.Len(t, res.Staged, 1)
	assert.True(t, strings.HasSuffix(res.Staged[0].Path, "Ceremony-b.jpg"), res.Staged[0].Path)
	assert.Equal(t, []string{"a.jpg", "Ceremony-b.jpg"}, dst.filenames("Wedding"))
	assert.Equal(t, 1, res.Upload.Transferred)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.Finished.Before(res.Started))
}

func TestSync_createsAlbumBeforeUpload(t *testing.T) {
	src := weddingSource()
	dst := newFakeDest()
	s := newTestSyncer(t, src, dst, "Wedding")

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Wedding"}, dst.created)
	require.Len(t, dst.albums, 1)
	assert.Equal(t, "Wedding", dst.albums[0].Title)
	assert.ElementsMatch(t, []string{"a.jpg", "Ceremony-b.jpg"}, dst.filenames("Wedding"))
}

func TestSync_rootFolderNotFound(t *testing.T) {
	src := newFakeSource().addFolder("x", "Holiday", "").addFile("h", "h.jpg", "x", "h")
	dst := newFakeDest()
	s := newTestSyncer(t, src, dst, "Wedding")

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Staged)
	assert.Zero(t, src.openCount())
	assert.Empty(t, dst.uploads)
	assert.Empty(t, dst.created)
}

func TestSync_secondRunIsNoop(t *testing.T) {
	src := weddingSource()
	dst := newFakeDest()
	s := newTestSyncer(t, src, dst, "Wedding")

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	opens, uploads := src.openCount(), len(dst.uploads)

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Missing)
	assert.Equal(t, opens, src.openCount())
	assert.Len(t, dst.uploads, uploads)
}

func TestSync_retriesFailedItemNextCycle(t *testing.T) {
	src := weddingSource()
	src.openErr["b"] = errors.New("transient")
	dst := newFakeDest().withAlbum("Wedding")
	s := newTestSyncer(t, src, dst, "Wedding")

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Download.Failed)
	assert.Equal(t, []string{"a.jpg"}, dst.filenames("Wedding"))

	delete(src.openErr, "b")
	res, err = s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ceremony"}, res.Missing.Labels())
	assert.Equal(t, []string{"a.jpg", "Ceremony-b.jpg"}, dst.filenames("Wedding"))
}

func TestSync_stagedButNotUploaded(t *testing.T) {
	src := weddingSource()
	dst := newFakeDest().withAlbum("Wedding")
	dst.uploadErr["Ceremony-b.jpg"] = errors.New("rejected")
	s := newTestSyncer(t, src, dst, "Wedding")

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, src.openCount())

	delete(dst.uploadErr, "Ceremony-b.jpg")
	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, src.openCount(), "staged file is reused")
	assert.Equal(t, TransferStats{Skipped: 1}, res.Download)
	assert.Equal(t, 1, res.Upload.Transferred)
	assert.Equal(t, filepath.Join("/staging", "Ceremony-b.jpg"), res.Staged[0].Path)
}

func TestSync_missingMainFolderName(t *testing.T) {
	for _, name := range []string{"", "  "} {
		s := newTestSyncer(t, weddingSource(), newFakeDest(), name)

		res, err := s.RunCycle(context.Background())
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Equal(t, 1, res.SourceLog.Errors())
		assert.Same(t, res, s.LastResult())
	}
}

func TestSync_destinationLoginFails(t *testing.T) {
	src := weddingSource()
	dst := newFakeDest()
	dst.loginErr = errors.New("invalid_grant")
	s := newTestSyncer(t, src, dst, "Wedding")

	res, err := s.RunCycle(context.Background())

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "login", perr.Op)
	assert.Zero(t, src.openCount())
	assert.Equal(t, 1, res.DestinationLog.Errors())
}

func TestSync_sourceLogIsPerCycle(t *testing.T) {
	s := newTestSyncer(t, weddingSource(), newFakeDest(), "Wedding")

	first, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	second, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, first.SourceLog, second.SourceLog)
	assert.Less(t, len(second.SourceLog.Entries()), len(first.SourceLog.Entries()),
		"second cycle has nothing to download, so fewer messages")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSync_overlappingCycleIsRejected(t *testing.T) {
	dst := newFakeDest()
	dst.gate = make(chan struct{})
	dst.entered = make(chan struct{}, 1)
	s := newTestSyncer(t, weddingSource(), dst, "Wedding")

	done := make(chan error, 1)
	go func() {
		_, err := s.RunCycle(context.Background())
		done <- err
	}()

	select {
	case <-dst.entered:
	case <-time.After(time.Second):
		t.Fatal("first cycle did not start")
	}

	_, err := s.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(dst.gate)
	require.NoError(t, <-done)
}

func TestSync_separatorInNameUploadedOnce(t *testing.T) {
	src := newFakeSource().
		addFolder("root", "Wedding", "").
		addFile("up", "../x.jpg", "root", "x")
	dst := newFakeDest().withAlbum("Wedding")
	s := newTestSyncer(t, src, dst, "Wedding")

	_, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"../x.jpg"}, dst.filenames("Wedding"))

	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Missing.Count())
	assert.Equal(t, []string{"../x.jpg"}, dst.uploads)
}
