// Package api serves the engine's diagnostics over HTTP: backend
// information, self-check runs and one-shot small-matrix evaluation.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/timguo/taichi/internal/backend"
	"github.com/timguo/taichi/internal/engine"
	"github.com/timguo/taichi/internal/logger"
	"github.com/timguo/taichi/internal/version"
)

type Server struct {
	store  *CheckStore
	engine *engine.Engine
	log    logger.Logger
	clock  func() time.Time
}

// NewServer serves requests with eng. Check runs build their own engines
// from eng's configuration so they never share fields with linalg calls.
func NewServer(store *CheckStore, eng *engine.Engine, log logger.Logger) *Server {
	if store == nil {
		store = NewCheckStore(0)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:  store,
		engine: eng,
		log:    log.With("component", "api"),
		clock:  time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/archs", s.handleArchs)

	e.POST("/v1/checks", s.handleCreateCheck)
	e.GET("/v1/checks", s.handleListChecks)
	e.GET("/v1/checks/:id", s.handleGetCheck)
	e.DELETE("/v1/checks/:id", s.handleDeleteCheck)

	e.POST("/v1/linalg/:op", s.handleLinalg)
}

type healthResponse struct {
	Status  string       `json:"status"`
	Version version.Info `json:"version"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Version: version.Resolve()})
}

type archsResponse struct {
	Active       string   `json:"active"`
	Available    []string `json:"available"`
	DefaultFloat string   `json:"default_float"`
	Lanes        int      `json:"lanes"`
	Features     []string `json:"features"`
}

func (s *Server) handleArchs(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "engine not configured", "", "")
	}
	cfg := s.engine.Config()
	lanes := cfg.Workers
	if lanes <= 0 {
		lanes = backend.Lanes()
	}
	return c.JSON(http.StatusOK, archsResponse{
		Active:       s.engine.Arch(),
		Available:    strings.Split(backend.Available(), ","),
		DefaultFloat: cfg.DefaultFloat.String(),
		Lanes:        lanes,
		Features:     backend.Features(),
	})
}
