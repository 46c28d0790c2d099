package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sandeepkandula/drivesync/sync"
)

var imageMimeTypes = []string{"image/jpeg", "image/png"}

type cycleSummary struct {
	ID                string             `json:"id"`
	Started           time.Time          `json:"started"`
	Finished          time.Time          `json:"finished"`
	Missing           int                `json:"missing"`
	Download          sync.TransferStats `json:"download"`
	Upload            sync.TransferStats `json:"upload"`
	SourceErrors      int                `json:"source_errors"`
	DestinationErrors int                `json:"destination_errors"`
	Error             string             `json:"error,omitempty"`
}

func summarize(res *sync.CycleResult) cycleSummary {
	sum := cycleSummary{
		ID:                res.ID,
		Started:           res.Started,
		Finished:          res.Finished,
		Missing:           res.Missing.Count(),
		Download:          res.Download,
		Upload:            res.Upload,
		SourceErrors:      res.SourceLog.Errors(),
		DestinationErrors: res.DestinationLog.Errors(),
	}
	if res.Err != nil {
		sum.Error = res.Err.Error()
	}
	return sum
}

func healthHandler(c *gin.Context) {
	c.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	res := s.syncer.LastResult()
	if res == nil {
		c.PureJSON(http.StatusOK, gin.H{"status": "no cycle has run yet"})
		return
	}
	c.PureJSON(http.StatusOK, summarize(res))
}

// runSync runs a cycle now. The cycle outlives a disconnecting client.
func (s *Server) runSync(c *gin.Context) {
	res, err := s.syncer.RunCycle(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, sync.ErrCycleInProgress):
		c.Error(err)
		c.PureJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case res == nil:
		c.Error(err)
		c.PureJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	code := http.StatusOK
	if err != nil {
		c.Error(err)
		code = http.StatusBadGateway
		if errors.Is(err, sync.ErrConfiguration) {
			code = http.StatusUnprocessableEntity
		}
	}
	c.PureJSON(code, summarize(res))
}

func (s *Server) driveMessages(c *gin.Context) {
	var messages []string
	if res := s.syncer.LastResult(); res != nil {
		messages = res.SourceLog.Messages()
	}
	c.PureJSON(http.StatusOK, nonNil(messages))
}

func (s *Server) photoMessages(c *gin.Context) {
	var messages []string
	if res := s.syncer.LastResult(); res != nil {
		messages = res.DestinationLog.Messages()
	}
	c.PureJSON(http.StatusOK, nonNil(messages))
}

func (s *Server) driveFolders(c *gin.Context) {
	s.listSource(c, sync.Query{Kind: sync.KindFolder})
}

func (s *Server) driveImages(c *gin.Context) {
	s.listSource(c, sync.Query{Kind: sync.KindFile, MimeTypes: imageMimeTypes})
}

func (s *Server) listSource(c *gin.Context, q sync.Query) {
	items, err := s.src.List(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		c.PureJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.PureJSON(http.StatusOK, nonNil(items))
}

func (s *Server) photoAlbums(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.dst.Login(ctx); err != nil {
		c.Error(err)
		c.PureJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	albums, err := s.dst.ListAlbums(ctx)
	if err != nil {
		c.Error(err)
		c.PureJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.PureJSON(http.StatusOK, nonNil(albums))
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
