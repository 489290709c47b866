// Package server exposes the survey, chat, metrics, and opportunity
// operations as a JSON API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/frictiondesk/frictiondesk/internal/chat"
	"github.com/frictiondesk/frictiondesk/internal/metrics"
	"github.com/frictiondesk/frictiondesk/internal/notify"
	"github.com/frictiondesk/frictiondesk/internal/opportunity"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB            *gorm.DB
	Engine        *chat.Engine
	Calculator    *metrics.Calculator
	Opportunities *opportunity.Generator
	Notifiers     []notify.Notifier
	Port          int
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Engine == nil {
		return fmt.Errorf("server: chat engine is required")
	}
	if opts.Calculator == nil {
		return fmt.Errorf("server: metrics calculator is required")
	}
	if opts.Opportunities == nil {
		return fmt.Errorf("server: opportunity generator is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, &handlers{
		db:     opts.DB,
		engine: opts.Engine,
		calc:   opts.Calculator,
		opps:   opts.Opportunities,
		notifs: opts.Notifiers,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.WithField("port", opts.Port).Info("server: listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
