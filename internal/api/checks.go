package api

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/timguo/taichi/internal/backend"
	"github.com/timguo/taichi/internal/dtype"
	"github.com/timguo/taichi/internal/engine"
	"github.com/timguo/taichi/internal/selftest"
)

// CheckRequest selects the scenarios of a check run. Arch may be "all" to
// run every scenario on each architecture.
type CheckRequest struct {
	Arch         string      `json:"arch,omitempty"`
	Scenarios    []string    `json:"scenarios,omitempty"`
	DefaultFloat dtype.DType `json:"default_float,omitempty"`
}

type listResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

func (s *Server) handleCreateCheck(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "engine not configured", "", "")
	}
	req, err := decodeJSON[CheckRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	archs, err := checkArchs(req.Arch, s.engine.Arch())
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "arch", "")
	}
	known := selftest.Names()
	for _, name := range req.Scenarios {
		if !slices.Contains(known, name) {
			return writeError(c, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("unknown scenario %q", name), "scenarios", "")
		}
	}

	cfg := s.engine.Config()
	if req.DefaultFloat != dtype.Invalid {
		cfg.DefaultFloat = req.DefaultFloat
	}
	ctx := c.Request().Context()
	run := CheckRun{Archs: archs, DefaultFloat: cfg.DefaultFloat.String(), Passed: true}
	for _, arch := range archs {
		cfg.Arch = arch
		eng, err := engine.New(cfg, s.log)
		if err != nil {
			return writeFailure(c, newInvalidRequest(err.Error()))
		}
		results, err := selftest.Run(ctx, eng, req.Scenarios...)
		_ = eng.Close()
		if err != nil {
			return writeFailure(c, err)
		}
		for _, r := range results {
			run.Passed = run.Passed && r.Passed
		}
		run.Results = append(run.Results, results...)
	}

	run = s.store.Create(run, s.clock())
	s.log.Info("check run", "id", run.ID, "archs", strings.Join(archs, ","), "passed", run.Passed)
	return c.JSON(http.StatusOK, run)
}

// checkArchs resolves the requested architecture list. An empty request
// uses the server engine's architecture.
func checkArchs(arch, active string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "":
		return []string{active}, nil
	case "all":
		return []string{backend.CPU, backend.Parallel}, nil
	}
	resolved, err := backend.Resolve(arch)
	if err != nil {
		return nil, err
	}
	return []string{resolved}, nil
}

func (s *Server) handleListChecks(c *echo.Context) error {
	return c.JSON(http.StatusOK, listResponse[CheckRun]{Object: "list", Data: s.store.List()})
}

func (s *Server) handleGetCheck(c *echo.Context) error {
	id := c.Param("id")
	run, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, fmt.Sprintf("check run %q not found", id))
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleDeleteCheck(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, fmt.Sprintf("check run %q not found", id))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":      id,
		"object":  "check.run.deleted",
		"deleted": true,
	})
}
