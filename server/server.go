// Package server exposes a configured workflow over HTTP, SSE, and
// websocket, persisting every run to the trace store when one is
// configured.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/stores"
)

const shutdownTimeout = 10 * time.Second

// GenerateRequest is the body of POST /generate and /generate/stream
type GenerateRequest struct {
	InputMessage     string `json:"input_message" binding:"required"`
	UseKnowledgeBase bool   `json:"use_knowledge_base"`
}

// GenerateResponse is the reply of POST /generate
type GenerateResponse struct {
	Output            string                 `json:"output"`
	RunID             string                 `json:"run_id"`
	IntermediateSteps []aiq.IntermediateStep `json:"intermediate_steps"`
}

// Server hosts a workflow over HTTP
type Server struct {
	workflow  *aiq.Workflow
	store     stores.RunStore
	cfg       *config.Config
	engine    *gin.Engine
	scheduler *Scheduler
	logger    *log.Logger
}

// New wires up the routes and, when the config has schedules or a
// retention policy, the cron scheduler. store may be nil when no store
// section is configured.
func New(workflow *aiq.Workflow, store stores.RunStore, cfg *config.Config) *Server {
	s := &Server{
		workflow: workflow,
		store:    store,
		cfg:      cfg,
		logger:   log.New(os.Stdout, "[server] ", log.LstdFlags),
	}

	switch cfg.General.Logging.Level {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "":
		// keep the process default
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()
	engine.POST("/generate", s.handleGenerate)
	engine.POST("/generate/stream", s.handleGenerateStream)
	engine.GET("/ws", s.handleWebsocket)
	engine.GET("/health", s.handleHealth)
	engine.GET("/runs", s.handleListRuns)
	engine.GET("/runs/:runID", s.handleGetRun)
	s.engine = engine

	s.scheduler = NewScheduler(workflow, store, cfg)

	return s
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.General.Address(),
		Handler: s.engine,
	}

	s.scheduler.Start()
	defer s.scheduler.Stop()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		s.logger.Printf("Received %s, shutting down", sig)
	case <-ctx.Done():
		s.logger.Println("Context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.New().String()
	logger := log.New(os.Stdout, fmt.Sprintf("[HTTP %s] ", runID), log.LstdFlags)
	logger.Printf("Generate request: %q", req.InputMessage)

	s.recordRunStart(runID, "http", req.InputMessage, req.UseKnowledgeBase)

	output, steps, err := s.workflow.Run(c.Request.Context(), req.InputMessage, req.UseKnowledgeBase)
	s.recordRunEnd(runID, output, steps, err)
	if err != nil {
		logger.Printf("Workflow failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "run_id": runID})
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Output:            output,
		RunID:             runID,
		IntermediateSteps: steps,
	})
}

func (s *Server) handleGenerateStream(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.New().String()
	logger := log.New(os.Stdout, fmt.Sprintf("[HTTP %s] ", runID), log.LstdFlags)
	logger.Printf("Stream request: %q", req.InputMessage)

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	s.recordRunStart(runID, "http", req.InputMessage, req.UseKnowledgeBase)

	stepsChan, resultChan := s.workflow.Run_Stream(c.Request.Context(), req.InputMessage, req.UseKnowledgeBase)

	var collected []aiq.IntermediateStep
	for step := range stepsChan {
		collected = append(collected, step)
		c.SSEvent("intermediate_data", step)
		c.Writer.Flush()
	}

	result := <-resultChan
	s.recordRunEnd(runID, result.Output, collected, result.Err)
	if result.Err != nil {
		logger.Printf("Workflow failed: %v", result.Err)
		c.SSEvent("error", result.Err.Error())
		c.Writer.Flush()
		return
	}

	c.SSEvent("system_response_complete", gin.H{"output": result.Output, "run_id": runID})
	c.Writer.Flush()
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":   "ok",
		"workflow": s.workflow.Entry().Name,
	}
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["store"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no store configured"})
		return
	}

	runs, err := s.store.ListRuns(c.Query("channel"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no store configured"})
		return
	}

	runID := c.Param("runID")
	run, err := s.store.GetRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	steps, err := s.store.FetchSteps(runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run, "steps": steps})
}

func (s *Server) recordRunStart(runID, channel, input string, useKB bool) {
	if s.store == nil {
		return
	}
	err := s.store.CreateRun(&stores.Run{
		RunID:            runID,
		Channel:          channel,
		Input:            input,
		UseKnowledgeBase: useKB,
		Status:           "running",
		StartedAt:        time.Now(),
	})
	if err != nil {
		s.logger.Printf("Warning: failed to record run %s: %v", runID, err)
	}
}

func (s *Server) recordRunEnd(runID, output string, steps []aiq.IntermediateStep, runErr error) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSteps(runID, stores.FromSteps(steps)); err != nil {
		s.logger.Printf("Warning: failed to save steps for run %s: %v", runID, err)
	}
	if err := s.store.CompleteRun(runID, output, runErr); err != nil {
		s.logger.Printf("Warning: failed to complete run %s: %v", runID, err)
	}
}
