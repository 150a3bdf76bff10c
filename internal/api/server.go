package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"flexwta/adapters/report"
	"flexwta/domain/core"
	"flexwta/domain/model"
	"flexwta/internal/logging"
	"flexwta/ports"
)

// Server is the run monitor: run listings, SSE progress, and results
type Server struct {
	router     *gin.Engine
	registry   *RunRegistry
	hub        *SSEHub
	aggregates ports.AggregateRepository
	resultDir  string
}

// NewServer wires the monitor routes
func NewServer(registry *RunRegistry, hub *SSEHub, aggregates ports.AggregateRepository, resultDir string) *Server {
	s := &Server{
		router:     gin.Default(),
		registry:   registry,
		hub:        hub,
		aggregates: aggregates,
		resultDir:  resultDir,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/runs", s.handleListRuns)
	s.router.GET("/api/runs/:id", s.handleGetRun)
	s.router.GET("/api/runs/:id/events", s.hub.HandleSSE)
	s.router.GET("/api/aggregates/:experiment", s.handleAggregates)
	s.router.GET("/report/:experiment", s.handleReport)
}

// Router exposes the gin engine, mainly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving on the given address
func (s *Server) Start(addr string) error {
	logging.Info("[Monitor] Starting run monitor on %s", addr)
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.registry.List()})
}

func (s *Server) handleGetRun(c *gin.Context) {
	state, ok := s.registry.Get(core.RunID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleAggregates(c *gin.Context) {
	experiment, err := model.ParseExperiment(c.Param("experiment"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	aggregates, err := s.aggregates.ListByExperiment(c.Request.Context(), experiment)
	if err != nil {
		if core.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no aggregates for experiment"})
			return
		}
		logging.Error("[Monitor] Failed to list aggregates: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load aggregates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiment": experiment, "aggregates": aggregates})
}

func (s *Server) handleReport(c *gin.Context) {
	experiment, err := model.ParseExperiment(c.Param("experiment"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := filepath.Join(s.resultDir, fmt.Sprintf("report_%s.md", experiment))
	md, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no report published for experiment"})
			return
		}
		logging.Error("[Monitor] Failed to read report %s: %v", path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read report"})
		return
	}

	title := fmt.Sprintf("Replication report: %s", experiment)
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.RenderHTML(title, string(md)))
}
