// Package api serves feedback intake and run status over HTTP.
package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region deps
// FeedbackSink accepts user ratings. *evolution.Orchestrator satisfies it.
type FeedbackSink interface {
	AddUserFeedback(feedback.Entry) error
	Feedback() []feedback.Entry
}

// BestSource reports the best round of the active run.
type BestSource interface {
	BestSoFar() (evolution.BestSnapshot, bool)
	Running() bool
}

// ReportSource yields the last finished run's report.
type ReportSource interface {
	LatestReport() (evolution.Report, error)
}

// FeedbackObserver is told about every submission. *telemetry.Collector
// satisfies it.
type FeedbackObserver interface {
	ObserveFeedback(rating float64, accepted bool)
}

// Deps wires the server. Nil members disable the routes that need them.
type Deps struct {
	Feedback  FeedbackSink
	Best      BestSource
	Reports   ReportSource
	Processor evolution.Processor
	Observer  FeedbackObserver
	Metrics   http.Handler

	MaxIterations  int
	ProcessTimeout time.Duration
}
// #endregion deps

// #region server
// Server is the HTTP surface.
type Server struct {
	deps     Deps
	validate *validator.Validate
	logger   *slog.Logger
	engine   *gin.Engine
	http     *http.Server
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 3
	}
	if deps.ProcessTimeout <= 0 {
		deps.ProcessTimeout = time.Minute
	}
	s := &Server{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logging.New("api"),
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.logRequests())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	v1 := s.engine.Group("/v1")
	v1.POST("/feedback", s.handlePostFeedback)
	v1.GET("/feedback", s.handleListFeedback)
	v1.GET("/best", s.handleBest)
	v1.GET("/report", s.handleReport)
	v1.POST("/process", s.handleProcess)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
// #endregion server

// #region handlers
// FeedbackRequest is the body of POST /v1/feedback.
type FeedbackRequest struct {
	Sentence  string            `json:"sentence" validate:"required,max=2000"`
	Subject   string            `json:"subject" validate:"max=200"`
	Predicate string            `json:"predicate" validate:"max=200"`
	Object    string            `json:"object" validate:"max=200"`
	Modifiers map[string]string `json:"modifiers" validate:"max=16"`
	Rating    *float64          `json:"rating" validate:"required,gte=0,lte=10"`
	Comment   string            `json:"comment" validate:"max=2000"`
}

func (s *Server) handleHealth(c *gin.Context) {
	running := false
	if s.deps.Best != nil {
		running = s.deps.Best.Running()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": running})
}

func (s *Server) handlePostFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback intake disabled"})
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.reject(c, http.StatusUnprocessableEntity, "validation failed", err)
		return
	}

	entry := feedback.Entry{
		Sentence: req.Sentence,
		Triplet: triplet.Triplet{
			Subject:   req.Subject,
			Predicate: req.Predicate,
			Object:    req.Object,
			Modifiers: req.Modifiers,
		},
		Rating:  *req.Rating,
		Comment: req.Comment,
	}
	if err := s.deps.Feedback.AddUserFeedback(entry); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, feedback.ErrInvalidEntry) {
			status = http.StatusUnprocessableEntity
		}
		s.reject(c, status, "feedback rejected", err)
		return
	}
	if s.deps.Observer != nil {
		s.deps.Observer.ObserveFeedback(*req.Rating, true)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) reject(c *gin.Context, status int, msg string, err error) {
	s.logger.Warn(msg, "error", err, "path", c.FullPath())
	if s.deps.Observer != nil && c.FullPath() == "/v1/feedback" {
		s.deps.Observer.ObserveFeedback(0, false)
	}
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback intake disabled"})
		return
	}
	entries := s.deps.Feedback.Feedback()
	c.JSON(http.StatusOK, gin.H{
		"count":        len(entries),
		"satisfaction": feedback.Summarize(entries),
	})
}

func (s *Server) handleBest(c *gin.Context) {
	if s.deps.Best == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no run attached"})
		return
	}
	best, ok := s.deps.Best.BestSoFar()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no round completed yet"})
		return
	}
	c.JSON(http.StatusOK, best)
}

func (s *Server) handleReport(c *gin.Context) {
	if s.deps.Reports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no report store"})
		return
	}
	report, err := s.deps.Reports.LatestReport()
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no finished run"})
		return
	}
	if err != nil {
		s.reject(c, http.StatusInternalServerError, "load report", err)
		return
	}
	c.JSON(http.StatusOK, report.Record())
}

// ProcessRequest is the body of POST /v1/process.
type ProcessRequest struct {
	Sentence string `json:"sentence" validate:"required,max=2000"`
}

func (s *Server) handleProcess(c *gin.Context) {
	if s.deps.Processor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no processor attached"})
		return
	}
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.reject(c, http.StatusUnprocessableEntity, "validation failed", err)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.deps.ProcessTimeout)
	defer cancel()
	res := s.deps.Processor.Process(ctx, req.Sentence, s.deps.MaxIterations)
	c.JSON(http.StatusOK, gin.H{
		"result":    res,
		"formatted": triplet.Format(res.Final),
	})
}
// #endregion handlers
