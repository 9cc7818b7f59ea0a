package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jo-hoe/medscan/internal/backend/database"
	"github.com/jo-hoe/medscan/internal/core"
	"github.com/jo-hoe/medscan/internal/document"
	"github.com/jo-hoe/medscan/internal/metrics"
)

const maxUploadSize = "32M"

// Pipeline is the part of the core service exposed over HTTP
type Pipeline interface {
	RunScan(ctx context.Context, trigger string) (*document.Result, error)
	AnalyzeUpload(ctx context.Context, name string, data []byte) (*document.Result, error)
	ListResults(ctx context.Context, limit int) ([]*document.Result, error)
	GetResult(ctx context.Context, id string) (*document.Result, error)
	DeleteResult(ctx context.Context, id string) error
	SetLanguage(lang string) error
	Status() core.Status
	Metrics() *metrics.Metrics
}

type APIService struct {
	pipeline     Pipeline
	defaultLimit int
}

type LanguageRequest struct {
	Language string `json:"language" validate:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewAPIService(config *core.ServiceConfig, pipeline Pipeline) *APIService {
	return &APIService{
		pipeline:     pipeline,
		defaultLimit: config.ResultListLimit,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)
	e.GET("/metrics", echo.WrapHandler(s.pipeline.Metrics().Handler()))

	api := e.Group("/api")
	api.GET("/status", s.statusHandler)
	api.POST("/scan", s.scanHandler)
	api.POST("/analyze", s.analyzeHandler, middleware.BodyLimit(maxUploadSize))
	api.GET("/results", s.listResultsHandler)
	api.GET("/results/:id", s.getResultHandler)
	api.DELETE("/results/:id", s.deleteResultHandler)
	api.PUT("/language", s.languageHandler)
}

func (s *APIService) probeHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ok")
}

func (s *APIService) statusHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, s.pipeline.Status())
}

func (s *APIService) scanHandler(ctx echo.Context) error {
	result, err := s.pipeline.RunScan(ctx.Request().Context(), core.TriggerAPI)
	if errors.Is(err, core.ErrBusy) {
		return ctx.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	}
	if err != nil {
		slog.Error("scanHandler: scan failed", "status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) analyzeHandler(ctx echo.Context) error {
	file, err := ctx.FormFile("file")
	if err != nil {
		slog.Warn("analyzeHandler: missing uploaded file", "status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing multipart field 'file'"})
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("analyzeHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to open uploaded file"})
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("analyzeHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		slog.Error("analyzeHandler: failed to read uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read uploaded file"})
	}
	if len(data) == 0 {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "uploaded file is empty"})
	}

	result, err := s.pipeline.AnalyzeUpload(ctx.Request().Context(), file.Filename, data)
	if err != nil {
		slog.Error("analyzeHandler: analysis failed",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) listResultsHandler(ctx echo.Context) error {
	limit := s.defaultLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
		}
		limit = parsed
	}

	results, err := s.pipeline.ListResults(ctx.Request().Context(), limit)
	if err != nil {
		slog.Error("listResultsHandler: failed to list results", "status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list results"})
	}
	if results == nil {
		results = []*document.Result{}
	}
	return ctx.JSON(http.StatusOK, results)
}

func (s *APIService) getResultHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	result, err := s.pipeline.GetResult(ctx.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "result not found"})
	}
	if err != nil {
		slog.Error("getResultHandler: failed to get result",
			"status", http.StatusInternalServerError, "result_id", id, "error", err)
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get result"})
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) deleteResultHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	err := s.pipeline.DeleteResult(ctx.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return ctx.JSON(http.StatusNotFound, ErrorResponse{Error: "result not found"})
	}
	if err != nil {
		slog.Error("deleteResultHandler: failed to delete result",
			"status", http.StatusInternalServerError, "result_id", id, "error", err)
		return ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to delete result"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) languageHandler(ctx echo.Context) error {
	var req LanguageRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}
	if err := s.pipeline.SetLanguage(req.Language); err != nil {
		return ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return ctx.JSON(http.StatusOK, s.pipeline.Status())
}
