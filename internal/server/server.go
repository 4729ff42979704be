// Package server exposes the plan and scoring engines over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/kpiyard/internal/plan"
	"github.com/zulandar/kpiyard/internal/scoring"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB      *gorm.DB
	Plans   *plan.Service
	Scoring *scoring.Service
	Secret  []byte
	Port    int
	Out     io.Writer
	Now     func() time.Time
}

func (o *StartOpts) check() error {
	if o.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if o.Plans == nil || o.Scoring == nil {
		return fmt.Errorf("server: plan and scoring services are required")
	}
	if len(o.Secret) == 0 {
		return fmt.Errorf("server: jwt secret is required")
	}
	if o.Port <= 0 {
		o.Port = 8080
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, &handlers{opts: opts})
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "KPI API listening on http://localhost:%d\n", opts.Port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
