// Package api serves domain metadata, validation and entity rows over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// Repository reads and writes entities. Both *store.Store and the sqlite
// backend satisfy it.
type Repository interface {
	Insert(ctx context.Context, entities ...*domain.Entity) ([]*domain.Key, error)
	Update(ctx context.Context, entities ...*domain.Entity) error
	Delete(ctx context.Context, keys ...*domain.Key) error
	Select(ctx context.Context, k *domain.Key) (*domain.Entity, error)
	SelectAll(ctx context.Context, entityID string) ([]*domain.Entity, error)
}

// Server holds the handler dependencies.
type Server struct {
	domain *domain.Domain
	repo   Repository
	logger *zap.Logger
}

// NewRouter returns the HTTP handler for d. Row endpoints are registered
// only when repo is not nil.
func NewRouter(d *domain.Domain, repo Repository, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{domain: d, repo: repo, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog)

	api := r.Group("/api")
	api.GET("/domain", s.getDomain)
	api.GET("/entities/:entity", s.getEntity)
	api.POST("/entities/:entity/validate", s.validate)
	if repo != nil {
		rows := api.Group("/entities/:entity/rows")
		rows.GET("", s.listRows)
		rows.POST("", s.createRow)
		rows.GET("/:key", s.getRow)
		rows.PUT("/:key", s.updateRow)
		rows.DELETE("/:key", s.deleteRow)
	}
	return r
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("elapsed", time.Since(start)))
}
