package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const partSuffix = ".part"

// StagedFile is a downloaded item waiting to be uploaded.
type StagedFile struct {
	Path string `json:"path"`
	Key  string `json:"key"`
}

// TransferStats counts the outcome of one transfer phase.
type TransferStats struct {
	Transferred int `json:"transferred"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeTransferred
	outcomeSkipped
)

// Stager downloads missing items into a local staging directory. Files
// already present there are reused, so re-running a download is cheap.
type Stager struct {
	src         Source
	dir         string
	concurrency int
	fs          afero.Fs
}

// NewStager returns a Stager writing into dir on the local filesystem with at
// most concurrency parallel downloads.
func NewStager(src Source, dir string, concurrency int) *Stager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Stager{
		src:         src,
		dir:         dir,
		concurrency: concurrency,
		fs:          afero.NewOsFs(),
	}
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// Path returns where an item of the given folder is staged.
func (s *Stager) Path(name, folder string) string {
	return filepath.Join(s.dir, StagedFileName(Normalize(name, folder)))
}

type stageJob struct {
	folder string
	item   RemoteItem
}

// Download stages every item of missing and returns the staged files in
// folder order, root first. Items that cannot be fetched are logged and left
// out; only context cancellation aborts the whole phase.
func (s *Stager) Download(ctx context.Context, missing MissingSet, log *RunLog) ([]StagedFile, TransferStats, error) {
	var stats TransferStats

	// one job per key: same-named items would share a staged path
	var jobs []stageJob
	seen := make(map[string]bool)
	for _, folder := range missing.Labels() {
		for _, item := range missing[folder] {
			key := Normalize(item.Name, folder)
			if seen[key] {
				log.Warnf("Duplicate item %s in %s, downloading it once.", item.Name, folderDisplay(folder))
				continue
			}
			seen[key] = true
			jobs = append(jobs, stageJob{folder: folder, item: item})
		}
	}
	if len(jobs) == 0 {
		return nil, stats, nil
	}

	log.Infof("Download %d files from source.", len(jobs))
	if ok, _ := afero.DirExists(s.fs, s.dir); !ok {
		log.Infof("Creating directory: %s.", s.dir)
		if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
			return nil, stats, fmt.Errorf("create staging dir: %w", err)
		}
	}

	staged := make([]StagedFile, len(jobs))
	outcomes := make([]outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			file, res, err := s.stage(gctx, job, log)
			staged[i], outcomes[i] = file, res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	var out []StagedFile
	for i, res := range outcomes {
		switch res {
		case outcomeTransferred:
			stats.Transferred++
		case outcomeSkipped:
			stats.Skipped++
		default:
			stats.Failed++
			continue
		}
		out = append(out, staged[i])
	}
	return out, stats, nil
}

// stage downloads one item. The returned error is non-nil only when ctx is done.
func (s *Stager) stage(ctx context.Context, job stageJob, log *RunLog) (StagedFile, outcome, error) {
	if err := ctx.Err(); err != nil {
		return StagedFile{}, outcomeFailed, err
	}

	name, where := job.item.Name, folderDisplay(job.folder)
	file := StagedFile{Key: Normalize(name, job.folder)}
	if file.Key == "" {
		log.Errorf("Item %s in %s has no name, skipping.", job.item.ID, where)
		return StagedFile{}, outcomeFailed, nil
	}
	file.Path = filepath.Join(s.dir, StagedFileName(file.Key))

	if ok, _ := afero.Exists(s.fs, file.Path); ok {
		log.Infof("%s already exists, skipping download.", file.Key)
		return file, outcomeSkipped, nil
	}

	log.Infof("Downloading %s from %s.", name, where)
	n, err := s.fetch(ctx, job.item.ID, file.Path)
	if err != nil {
		if ctx.Err() != nil {
			return StagedFile{}, outcomeFailed, ctx.Err()
		}
		log.Errorf("Failed to download %s from %s: %v", name, where, err)
		return StagedFile{}, outcomeFailed, nil
	}

	log.Infof("Downloaded: %s to %s (%s).", file.Key, s.dir, humanize.Bytes(uint64(n)))
	return file, outcomeTransferred, nil
}

// fetch streams an item into path via a temporary file so an interrupted
// transfer never looks staged.
func (s *Stager) fetch(ctx context.Context, id, path string) (int64, error) {
	rc, err := s.src.Open(ctx, id)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	tmp := path + partSuffix
	f, err := s.fs.Create(tmp)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.fs.Rename(tmp, path)
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// UploadStaged uploads the staged files into the album called title,
// creating the album first when it does not exist. Nothing is touched when
// there is nothing to upload.
func UploadStaged(ctx context.Context, dst Destination, staged []StagedFile, title string, log *RunLog) (TransferStats, error) {
	var stats TransferStats
	if len(staged) == 0 {
		return stats, nil
	}

	album, err := resolveAlbum(ctx, dst, title, log)
	if err != nil {
		log.Errorf("Could not resolve album '%s': %v", title, err)
		return stats, err
	}

	for _, file := range staged {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		name := file.Key
		res, err := dst.UploadSingle(ctx, file.Path, name, album.ID)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.Failed++
			log.Errorf("Failed to upload %s: %v", name, err)
		case res == nil:
			stats.Skipped++
			log.Warnf("Upload of %s returned no result.", name)
		default:
			stats.Transferred++
			log.Infof("Name: %s, Code: %d, Status: %s, Message: %s", name, res.Status.Code, res.Status.Status, res.Status.Message)
		}
	}
	return stats, nil
}

func folderDisplay(label string) string {
	if label == "" {
		return "the main folder"
	}
	return label
}
