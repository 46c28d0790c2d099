package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sandeepkandula/drivesync/config"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"folder":      "main_folder_name",
	"interval":    "sync_interval_minutes",
	"staging-dir": "staging_dir",
	"concurrency": "concurrency",
	"destination": "destination",
	"http-addr":   "http.addr",
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "drivesync",
		Short: "Copy the images of a Google Drive folder tree into a photo album",
		Long: `drivesync periodically compares a Drive folder tree with an album of the
same name and copies over every image the album does not have yet. Images in
sub-folders are stored as "<folder>-<name>".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			if err := setupLogging(level); err != nil {
				return err
			}
			var err error
			cfg, err = loadConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.runDaemon(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "config file (default ./drivesync.yaml or <user config dir>/drivesync/drivesync.yaml)")
	flags.StringP("folder", "f", "", "Drive folder to copy, also the album title")
	flags.Int("interval", 0, "minutes between cycles (default 5)")
	flags.String("staging-dir", "", "local download directory (default ./drive_files)")
	flags.Int("concurrency", 0, "parallel downloads (default 1)")
	flags.String("destination", "", "destination kind: photos or s3 (default photos)")
	flags.String("http-addr", "", "status API listen address (default 127.0.0.1:8080)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	root.AddCommand(
		newOnceCmd(&cfg),
		newAlbumsCmd(&cfg),
		newFoldersCmd(&cfg),
	)
	return root
}

func newOnceCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.runOnce(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newAlbumsCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "albums",
		Short: "List the destination albums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.listAlbums(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newFoldersCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List the Drive folders visible to the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.listFolders(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	v, err := config.New(cfgFile)
	if err != nil {
		return nil, err
	}

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	cfg := config.Load(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f := v.ConfigFileUsed(); f != "" {
		slog.Debug("loaded config", "file", f)
	}
	return cfg, nil
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
