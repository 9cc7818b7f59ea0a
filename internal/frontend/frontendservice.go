package frontend

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/medscan/internal/core"
	"github.com/jo-hoe/medscan/internal/document"
	"github.com/jo-hoe/medscan/internal/language"
)

const (
	MainPageName    = "index.html"
	resultsFragment = "results"
)

// Dashboard is the part of the core service the monitoring page uses
type Dashboard interface {
	RunScan(ctx context.Context, trigger string) (*document.Result, error)
	ListResults(ctx context.Context, limit int) ([]*document.Result, error)
	DeleteResult(ctx context.Context, id string) error
	Status() core.Status
}

type FrontendService struct {
	dashboard Dashboard
	limit     int
}

type pageData struct {
	Status  core.Status
	Results []*document.Result
	Message string
}

var templateFuncs = template.FuncMap{
	"percent": func(confidence float64) string {
		return fmt.Sprintf("%.0f%%", confidence*100)
	},
	"timestamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("2006-01-02 15:04:05")
	},
	"languageName": language.DisplayName,
}

func NewFrontendService(config *core.ServiceConfig, dashboard Dashboard) *FrontendService {
	return &FrontendService{
		dashboard: dashboard,
		limit:     config.ResultListLimit,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = newTemplate()

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)

	e.POST("/htmx/scan", service.htmxScanHandler)
	e.GET("/htmx/results", service.htmxListResultsHandler)
	e.DELETE("/htmx/results/:id", service.htmxDeleteResultHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	data, err := service.page(ctx.Request().Context(), "")
	if err != nil {
		slog.Error("indexHandler: failed to list results", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list results")
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, data)
}

func (service *FrontendService) htmxScanHandler(ctx echo.Context) error {
	var message string
	result, err := service.dashboard.RunScan(ctx.Request().Context(), core.TriggerAPI)
	switch {
	case errors.Is(err, core.ErrBusy):
		message = "A scan is already running"
	case err != nil:
		slog.Error("htmxScanHandler: scan failed", "error", err)
		message = "Scan failed: " + err.Error()
	default:
		message = fmt.Sprintf("Scan complete: %s", result.DocumentType.DisplayName())
	}

	data, err := service.page(ctx.Request().Context(), message)
	if err != nil {
		slog.Error("htmxScanHandler: failed to list results", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list results")
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, resultsFragment, data)
}

func (service *FrontendService) htmxListResultsHandler(ctx echo.Context) error {
	data, err := service.page(ctx.Request().Context(), "")
	if err != nil {
		slog.Error("htmxListResultsHandler: failed to list results", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list results")
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, resultsFragment, data)
}

func (service *FrontendService) htmxDeleteResultHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := service.dashboard.DeleteResult(ctx.Request().Context(), id); err != nil {
		slog.Error("htmxDeleteResultHandler: failed to delete result", "result_id", id, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to delete result")
	}
	return service.htmxListResultsHandler(ctx)
}

func (service *FrontendService) page(ctx context.Context, message string) (*pageData, error) {
	results, err := service.dashboard.ListResults(ctx, service.limit)
	if err != nil {
		return nil, err
	}
	return &pageData{
		Status:  service.dashboard.Status(),
		Results: results,
		Message: message,
	}, nil
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
