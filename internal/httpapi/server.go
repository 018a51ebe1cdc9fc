package httpapi

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"recall/internal/auth"
	"recall/internal/domain"
)

// ItemService is the part of importer.Service the API exposes.
type ItemService interface {
	ImportOne(ctx context.Context, rawURL, ownerID string) (domain.SavedItem, error)
	DiscoverURLs(ctx context.Context, seedURL, filter string) ([]domain.Link, error)
	BulkImport(ctx context.Context, urls []string, ownerID string) (iter.Seq[domain.Progress], error)
	Search(ctx context.Context, query string) ([]domain.SearchResult, error)
	ListItems(ctx context.Context, ownerID string) ([]domain.SavedItem, error)
	GetItem(ctx context.Context, ownerID, id string) (domain.SavedItem, error)
	StreamSummary(ctx context.Context, ownerID, itemID, prompt string) (io.ReadCloser, error)
	SaveSummary(ctx context.Context, ownerID, itemID, summary string) (domain.SavedItem, error)
}

// Server is the Recall HTTP API.
type Server struct {
	items    ItemService
	identity auth.Provider
	router   *gin.Engine
	log      logrus.FieldLogger
}

// NewServer wires routes onto a fresh gin engine.
func NewServer(items ItemService, identity auth.Provider, logger logrus.FieldLogger) *Server {
	registerJSONFieldNames()

	router := gin.New()
	s := &Server{
		items:    items,
		identity: identity,
		router:   router,
		log:      logger.WithField("component", "httpapi"),
	}

	router.Use(gin.Recovery(), requestLogger(s.log))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/sign-in", s.handleSignIn)
		authGroup.POST("/sign-up", s.handleSignUp)
		authGroup.POST("/sign-out", s.handleSignOut)
	}

	api := router.Group("/api", s.requireSession())
	{
		api.GET("/items", s.handleListItems)
		api.GET("/items/:id", s.handleGetItem)
		api.POST("/items/scrape", s.handleScrape)
		api.POST("/items/map", s.handleMap)
		api.POST("/items/bulk-scrape", s.handleBulkScrape)
		api.POST("/items/:id/summary", s.handleSaveSummary)
		api.POST("/search", s.handleSearch)
		api.POST("/ai/summary", s.handleAISummary)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
