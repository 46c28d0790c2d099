package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkandula/drivesync/auth"
	"github.com/sandeepkandula/drivesync/config"
	"github.com/sandeepkandula/drivesync/drive"
	"github.com/sandeepkandula/drivesync/photos"
	"github.com/sandeepkandula/drivesync/server"
	"github.com/sandeepkandula/drivesync/sync"
)

// app holds the wired providers for one process.
type app struct {
	cfg    *config.Config
	src    sync.Source
	dst    sync.Destination
	syncer *sync.Syncer
}

func newApp(ctx context.Context, cfg *config.Config, consentOut io.Writer) (*app, error) {
	scopes := []string{drive.ReadonlyScope}
	if cfg.Destination == config.DestinationPhotos {
		scopes = append(scopes, photos.AppendOnlyScope, photos.ReadonlyAppCreatedScope)
	}

	session := auth.NewSession(auth.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Scopes:       scopes,
		TokenFile:    cfg.TokenFile,
		User:         cfg.Google.User,
	}, auth.LoopbackConsent(cfg.Auth.RedirectPort, consentOut))

	src, err := drive.New(ctx, session.LazyTokenSource(ctx), cfg.Drive.RequestsPerSecond)
	if err != nil {
		return nil, err
	}

	dst, err := newDestination(ctx, cfg, session)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		src:    src,
		dst:    dst,
		syncer: sync.NewSyncer(src, dst, cfg.SyncOptions()),
	}, nil
}

func newDestination(ctx context.Context, cfg *config.Config, session *auth.Session) (sync.Destination, error) {
	switch cfg.Destination {
	case config.DestinationS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return sync.NewS3Destination(
			s3.NewFromConfig(awsCfg),
			cfg.S3.Bucket,
			cfg.S3.Prefix,
			types.StorageClass(cfg.S3.StorageClass),
		), nil
	case config.DestinationPhotos:
		return photos.New(session, cfg.Photos.BaseURL), nil
	default:
		return nil, fmt.Errorf("%w: unknown destination %q", sync.ErrConfiguration, cfg.Destination)
	}
}

// runDaemon runs cycles on the configured interval and serves the status API
// until ctx is cancelled.
func (a *app) runDaemon(ctx context.Context) error {
	slog.Info("starting drivesync",
		"folder", a.cfg.MainFolderName,
		"destination", a.cfg.Destination,
		"interval", a.cfg.SyncInterval,
		"staging", a.cfg.StagingDir,
	)

	g, ctx := errgroup.WithContext(ctx)

	sched := sync.NewScheduler(a.syncer, a.cfg.SyncInterval)
	sched.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	if a.cfg.HTTP.Enabled {
		srv := server.New(a.syncer, a.src, a.dst)
		g.Go(func() error {
			return srv.Run(ctx, a.cfg.HTTP.Addr)
		})
	}

	err := g.Wait()
	slog.Info("stopped drivesync")
	return err
}

func (a *app) runOnce(ctx context.Context, w io.Writer) error {
	res, err := a.syncer.RunCycle(ctx)
	if res != nil {
		fmt.Fprintf(w, "missing: %d, downloaded: %d, reused: %d, uploaded: %d, failed: %d\n",
			res.Missing.Count(),
			res.Download.Transferred,
			res.Download.Skipped,
			res.Upload.Transferred,
			res.Download.Failed+res.Upload.Failed,
		)
	}
	return err
}

func (a *app) listAlbums(ctx context.Context, w io.Writer) error {
	if err := a.dst.Login(ctx); err != nil {
		return err
	}
	albums, err := a.dst.ListAlbums(ctx)
	if err != nil {
		return err
	}
	for _, al := range albums {
		fmt.Fprintf(w, "%s\t%s\n", al.ID, al.Title)
	}
	return nil
}

func (a *app) listFolders(ctx context.Context, w io.Writer) error {
	folders, err := a.src.List(ctx, sync.Query{Kind: sync.KindFolder})
	if err != nil {
		return err
	}
	for _, f := range folders {
		fmt.Fprintf(w, "%s\t%s\n", f.ID, f.Name)
	}
	return nil
}
