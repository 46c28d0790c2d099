package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options configures a sync cycle.
type Options struct {
	MainFolder  string // source folder name and destination album title
	StagingDir  string // local download cache
	Concurrency int    // parallel downloads, 1 if unset
}

// CycleResult is the outcome of one reconciliation-and-transfer cycle.
type CycleResult struct {
	ID             string        `json:"id"`
	Started        time.Time     `json:"started"`
	Finished       time.Time     `json:"finished"`
	Missing        MissingSet    `json:"missing"`
	Staged         []StagedFile  `json:"staged"`
	Download       TransferStats `json:"download"`
	Upload         TransferStats `json:"upload"`
	Err            error         `json:"-"`
	SourceLog      *RunLog       `json:"-"`
	DestinationLog *RunLog       `json:"-"`
}

// Syncer runs cycles copying the items of a source folder tree that are
// missing from a destination album.
type Syncer struct {
	src    Source
	dst    Destination
	stager *Stager
	opts   Options

	running sync.Mutex
	mu      sync.RWMutex
	last    *CycleResult
}

// NewSyncer returns a Syncer staging downloads under opts.StagingDir.
func NewSyncer(src Source, dst Destination, opts Options) *Syncer {
	return &Syncer{
		src:    src,
		dst:    dst,
		stager: NewStager(src, opts.StagingDir, opts.Concurrency),
		opts:   opts,
	}
}

// LastResult returns the most recent finished cycle, or nil.
func (s *Syncer) LastResult() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// RunCycle performs one full cycle: inventory both sides, compute what is
// missing, download it and upload it. It returns ErrCycleInProgress when
// another cycle is still running.
//
// Only a configuration error or a provider failure makes RunCycle return an
// error; single-item failures are logged and counted in the result.
func (s *Syncer) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !s.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.running.Unlock()

	res := &CycleResult{
		ID:             uuid.NewString(),
		Started:        time.Now(),
		SourceLog:      NewRunLog("source"),
		DestinationLog: NewRunLog("destination"),
	}
	res.Err = s.run(ctx, res)
	res.Finished = time.Now()

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	return res, res.Err
}

func (s *Syncer) run(ctx context.Context, res *CycleResult) error {
	if err := validateMainFolder(s.opts.MainFolder); err != nil {
		res.SourceLog.Errorf("%v", err)
		return err
	}
	folder := s.opts.MainFolder

	slog.Info("starting sync", "cycle", res.ID, "folder", folder)
	present, err := ListDestinationItemNames(ctx, s.dst, folder, res.DestinationLog)
	if err != nil {
		return fmt.Errorf("destination inventory: %w", err)
	}
	slog.Info("destination inventory", "cycle", res.ID, "album", folder, "count", present.Cardinality())

	inv, err := BuildSourceInventory(ctx, s.src, folder, res.SourceLog)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("source inventory: %w", err)
	}
	slog.Info("source inventory", "cycle", res.ID, "folder", folder, "folders", len(inv), "count", inv.Count())

	res.Missing = ComputeMissing(inv, present)
	slog.Info("missing files", "cycle", res.ID, "count", res.Missing.Count())
	if len(res.Missing) == 0 {
		slog.Info("finished sync", "cycle", res.ID, "took", time.Since(res.Started))
		return nil
	}

	res.Staged, res.Download, err = s.stager.Download(ctx, res.Missing, res.SourceLog)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	slog.Info("uploading files", "cycle", res.ID, "count", len(res.Staged))
	res.Upload, err = UploadStaged(ctx, s.dst, res.Staged, folder, res.DestinationLog)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	slog.Info("finished sync",
		"cycle", res.ID,
		"downloaded", res.Download.Transferred,
		"staged", res.Download.Skipped,
		"downloadFailed", res.Download.Failed,
		"uploaded", res.Upload.Transferred,
		"uploadFailed", res.Upload.Failed,
		"took", time.Since(res.Started),
	)
	return nil
}

func validateMainFolder(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: main folder name was not set, please set all the required fields", ErrConfiguration)
	}
	return nil
}
