// Package server exposes the sync state and the providers over HTTP for
// diagnostics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sandeepkandula/drivesync/sync"
)

const shutdownTimeout = 5 * time.Second

// CycleRunner is the part of sync.Syncer the server drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*sync.CycleResult, error)
	LastResult() *sync.CycleResult
}

type Server struct {
	syncer CycleRunner
	src    sync.Source
	dst    sync.Destination
}

func New(syncer CycleRunner, src sync.Source, dst sync.Destination) *Server {
	return &Server{syncer: syncer, src: src, dst: dst}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(Logger())
	r.Use(gin.Recovery())

	r.GET("/healthz", healthHandler)
	r.GET("/status", s.status)
	r.POST("/sync", s.runSync)

	drive := r.Group("/drive")
	{
		drive.GET("/messages", s.driveMessages)
		drive.GET("/folders", s.driveFolders)
		drive.GET("/images", s.driveImages)
	}

	photo := r.Group("/photo")
	{
		photo.GET("/albums", s.photoAlbums)
		photo.GET("/messages", s.photoMessages)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r.Handler()
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
