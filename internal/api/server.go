// Package api serves the NitroPlanner workflow engine over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nitroplanner/nitroplanner/internal/jobs"
	"github.com/nitroplanner/nitroplanner/internal/planner"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
	"github.com/nitroplanner/nitroplanner/internal/template"
	"github.com/nitroplanner/nitroplanner/internal/workunit"
)

// CompanyHeader selects the company a request acts for. Without it the
// server's default company is used.
const CompanyHeader = "X-Company-ID"

// Opts are the collaborators behind the routes.
type Opts struct {
	Planner   *planner.Service
	Units     *workunit.Store
	Templates *template.Store
	Jobs      *jobs.Runner
	Limits    simulation.Limits
	CompanyID string
	Logger    *zap.Logger
	// Registry receives the engine and HTTP metrics and backs /metrics.
	// A fresh registry is created when nil.
	Registry *prometheus.Registry
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Opts
	Port int
	Out  io.Writer
}

type server struct {
	planner   *planner.Service
	units     *workunit.Store
	templates *template.Store
	jobs      *jobs.Runner
	limits    simulation.Limits
	companyID string
	log       *zap.Logger
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Planner == nil || opts.Units == nil || opts.Templates == nil || opts.Jobs == nil {
		return nil, fmt.Errorf("api: planner, work unit store, template store and job runner are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Limits.MaxIterations == 0 {
		opts.Limits = simulation.DefaultLimits()
	}
	initMetrics(opts.Registry)

	s := &server{
		planner:   opts.Planner,
		units:     opts.Units,
		templates: opts.Templates,
		jobs:      opts.Jobs,
		limits:    opts.Limits,
		companyID: opts.CompanyID,
		log:       opts.Logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logMiddleware(opts.Logger))
	router.Use(metricsMiddleware())
	router.Use(errorHandleMiddleware(opts.Logger))

	registerRoutes(router, s, opts.Registry)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts.Opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "NitroPlanner API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// company returns the company a request is scoped to.
func (s *server) company(c *gin.Context) string {
	if id := c.GetHeader(CompanyHeader); id != "" {
		return id
	}
	return s.companyID
}
