package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/datamover/internal/app"
	"github.com/tphakala/datamover/internal/archive"
	"github.com/tphakala/datamover/internal/etl"
	"github.com/tphakala/datamover/internal/migrate"
)

var pipelines = []string{archive.PipelineName, migrate.PipelineName}

// errorResponse is the body of non-report error responses.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	running := make(map[string]bool, len(pipelines))
	for _, p := range pipelines {
		running[p] = s.runner.Running(p)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"running":        running,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleArchive runs archive-and-purge. ?dryRun=true keeps source records.
func (s *Server) handleArchive(c echo.Context) error {
	var opts app.ArchiveOptions
	if v := c.QueryParam("dryRun"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "dryRun must be a boolean"})
		}
		opts.DryRun = &dryRun
	}
	return s.respondWithRun(c, func(ctx context.Context) (etl.Report, error) {
		return s.runner.RunArchive(ctx, opts)
	})
}

func (s *Server) handleMigrate(c echo.Context) error {
	return s.respondWithRun(c, s.runner.RunMigrate)
}

// respondWithRun runs fn and answers with the report. Runs that could not
// start answer 500; finished runs answer 200 whatever their status.
func (s *Server) respondWithRun(c echo.Context, fn func(context.Context) (etl.Report, error)) error {
	report, err := fn(s.ctx)
	if errors.Is(err, app.ErrRunInProgress) {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}
	if report.Status == etl.StatusFailed {
		return c.JSON(http.StatusInternalServerError, report)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleLastRun(c echo.Context) error {
	pipeline := c.Param("pipeline")
	if !slices.Contains(pipelines, pipeline) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown pipeline " + strconv.Quote(pipeline)})
	}

	v, ok := s.reports.Get(pipeline)
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no run recorded for " + pipeline})
	}
	return c.JSON(http.StatusOK, v.(etl.Report))
}
